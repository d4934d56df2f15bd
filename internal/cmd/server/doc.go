// Package serverrun exposes a shared Run entrypoint used by the CLI to start
// a RocketSpeed broker: storage, the ControlTower, the shard-aware proxy
// front door, and the admin gRPC surface, handling lifecycle and shutdown.
//
// Example:
//
//	opts := serverrun.Options{
//		DataDir:      "./data",
//		ListenAddr:   ":8080",
//		InternalAddr: "127.0.0.1:0",
//		AdminAddr:    ":8081",
//		Fsync:        pebblestore.FsyncModeAlways,
//		Config:       config.Default(),
//	}
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, opts)
package serverrun

// Package serverrun wires storage, the ControlTower, the shard-aware proxy
// layer, and the admin gRPC surface into one running process, the way the
// teacher's serverrun.Run wires storage and the gRPC/HTTP servers together.
package serverrun

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/BMDan/RocketSpeed/internal/adminrpc"
	"github.com/BMDan/RocketSpeed/internal/broker"
	cfgpkg "github.com/BMDan/RocketSpeed/internal/config"
	"github.com/BMDan/RocketSpeed/internal/ioloop"
	"github.com/BMDan/RocketSpeed/internal/proxy"
	"github.com/BMDan/RocketSpeed/internal/runtime"
	"github.com/BMDan/RocketSpeed/internal/sharding"
	pebblestore "github.com/BMDan/RocketSpeed/internal/storage/pebble"
	"github.com/BMDan/RocketSpeed/internal/transport"
	"github.com/BMDan/RocketSpeed/internal/wire"
	logpkg "github.com/BMDan/RocketSpeed/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// getenv is the environment lookup getenvDefault uses; a package variable
// wrapping os.Getenv
var getenv = func(key string) string { return os.Getenv(key) }

// Options configures one broker process: where it stores its log, where
// clients dial in (proxied through the shard layer), where the broker
// itself listens internally for the proxy's upstream connections, and
// where the admin surface answers operational queries.
type Options struct {
	DataDir      string
	ListenAddr   string
	InternalAddr string
	AdminAddr    string
	Fsync        pebblestore.FsyncMode
	Config       cfgpkg.Config
}

// accumulatorCapacity bounds how many recent deliveries the proxy's
// Multiplexer replays to a late-joining downstream on a hot topic.
const accumulatorCapacity = 256

// Run starts the broker, its shard-aware proxy front door, and the admin
// gRPC surface, and blocks until ctx is cancelled or a listener fails.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	storeDir := filepath.Join(opts.DataDir, "store")
	rt, err := runtime.Open(runtime.Options{DataDir: storeDir, Fsync: opts.Fsync, Config: opts.Config})
	if err != nil {
		return err
	}
	defer rt.Close()

	logCfg := &logpkg.Config{
		Level:  firstNonEmpty(opts.Config.Level, getenvDefault("ROCKETSPEED_LOG_LEVEL", "info")),
		Format: firstNonEmpty(opts.Config.Format, getenvDefault("ROCKETSPEED_LOG_FORMAT", "text")),
	}
	procLogger, err := logpkg.ApplyConfig(logCfg)
	if err != nil {
		lvl := logpkg.InfoLevel
		if l, perr := logpkg.ParseLevel(logCfg.Level); perr == nil {
			lvl = l
		}
		procLogger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}
	logpkg.RedirectStdLog(procLogger)

	numShards := opts.Config.NumShards
	if numShards <= 0 {
		numShards = 1
	}

	ct := broker.New(broker.Config{
		NumRooms:             numShards,
		ReadersPerRoom:       max1(opts.Config.MsgLoopWorkers),
		CacheBytesTotal:      opts.Config.TopicTailerCacheBytes,
		DB:                   rt.DB(),
		RetentionBytesPerLog: opts.Config.RetentionBytesPerLog,
		RetentionInterval:    opts.Config.RetentionSweepInterval,
		Logger:               procLogger.With(logpkg.Component("retention")),
	})
	defer ct.Stop()

	internalLn, err := net.Listen("tcp", opts.InternalAddr)
	if err != nil {
		return fmt.Errorf("serverrun: internal listener: %w", err)
	}
	defer internalLn.Close()

	transportOpts := transport.DefaultOptions()
	if opts.Config.StreamSendBuffer > 0 {
		transportOpts.SendQueueLimit = opts.Config.StreamSendBuffer
	}

	internalLoop := ioloop.NewEventLoop(4096)
	go internalLoop.Run(sctx)
	go serveControlTower(sctx, internalLn, internalLoop, ct, transportOpts, procLogger.With(logpkg.Component("internal")))

	router := buildRouter(opts.Config, numShards)
	router.AddHost(sharding.HostID(internalLn.Addr().String()))

	hotPredicate, err := sharding.NewHotTopicPredicate(opts.Config.HotTopicExpr)
	if err != nil {
		return fmt.Errorf("serverrun: hot topic predicate: %w", err)
	}

	proxyLoop := ioloop.NewEventLoop(4096)
	go proxyLoop.Run(sctx)
	dialer := transport.NewTCPDialer(proxyLoop, transportOpts, procLogger.With(logpkg.Component("proxy-dial")))

	shards := make([]*proxy.PerShard, numShards)
	for i := range shards {
		shards[i] = proxy.NewPerShard(uint32(i), router, dialer, hotPredicate, accumulatorCapacity, proxyLoop)
	}
	defer func() {
		for _, s := range shards {
			s.Stop()
		}
	}()

	publicLn, err := net.Listen("tcp", opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("serverrun: public listener: %w", err)
	}
	defer publicLn.Close()

	adminSrv := adminrpc.New(rt, ct)
	defer adminSrv.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		acceptClients(sctx, publicLn, proxyLoop, shards, transportOpts, procLogger.With(logpkg.Component("public")))
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := adminSrv.ListenAndServe(sctx, firstNonEmpty(opts.AdminAddr, opts.Config.AdminAddr)); err != nil && sctx.Err() == nil {
			procLogger.Error("admin rpc error", logpkg.Err(err))
		}
	}()

	procLogger.Info("rocketspeed server started",
		logpkg.Str("listen", opts.ListenAddr),
		logpkg.Str("internal", internalLn.Addr().String()),
		logpkg.Str("admin", firstNonEmpty(opts.AdminAddr, opts.Config.AdminAddr)),
		logpkg.Int("shards", numShards),
		logpkg.Str("sharding", opts.Config.Sharding),
	)

	<-sctx.Done()
	_ = publicLn.Close()
	_ = internalLn.Close()
	adminSrv.Close()
	wg.Wait()
	return nil
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// hostRouter is satisfied by both sharding.Router implementations; Router
// itself omits AddHost since a router's fleet membership is implementation-
// specific, but Run needs to seed this process's own host into whichever
// concrete router buildRouter picked.
type hostRouter interface {
	sharding.Router
	AddHost(sharding.HostID)
}

func buildRouter(cfg cfgpkg.Config, numShards int) hostRouter {
	if cfg.Sharding == "rendezvous" {
		return sharding.NewRendezvousRouter(numShards, 1)
	}
	return sharding.NewConsistentRouter(numShards, 1, 64)
}

// serveControlTower accepts the proxy's upstream connections and dispatches
// their wire messages straight into the ControlTower, the same switch
// internal/broker's controltower_test.go uses to drive a ControlTower from
// a live socket.
func serveControlTower(ctx context.Context, ln net.Listener, loop *ioloop.EventLoop, ct *broker.ControlTower, opts transport.Options, logger logpkg.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		sock := transport.NewSocket(conn, loop, false, opts, logger)
		sock.SetOnNewStream(func(origin *transport.Stream) {
			origin.OnMessage(func(msg wire.Message) {
				switch m := msg.(type) {
				case wire.Subscribe:
					ct.Subscribe(origin, m)
				case wire.Unsubscribe:
					ct.Unsubscribe(origin, m)
				case wire.Publish:
					ct.Publish(ctx, origin, m)
				case wire.FindTailSeqno:
					ct.FindTailSeqno(ctx, origin, m)
				case wire.Goodbye:
					ct.OnGoodbye(origin)
				}
			})
		})
	}
}

// acceptClients accepts public client connections and hands each new
// stream to a shard's PerStream. NumShards is a single-node knob here;
// production deployments give each shard its own listener and let C4's
// router dial the right one directly.
func acceptClients(ctx context.Context, ln net.Listener, loop *ioloop.EventLoop, shards []*proxy.PerShard, opts transport.Options, logger logpkg.Logger) {
	var next uint64
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		shard := shards[atomic.AddUint64(&next, 1)%uint64(len(shards))]
		sock := transport.NewSocket(conn, loop, false, opts, logger)
		sock.SetOnNewStream(func(downstream *transport.Stream) {
			pst := shard.AttachStream(downstream)
			downstream.OnMessage(func(msg wire.Message) {
				switch m := msg.(type) {
				case wire.Subscribe:
					pst.OnSubscribe(m)
				case wire.Unsubscribe:
					pst.OnUnsubscribe(m)
				case wire.Goodbye:
					pst.OnGoodbye()
					shard.DetachStream(downstream)
				}
			})
		})
	}
}

// Package config provides loading and environment overlay for a RocketSpeed
// broker process's configuration. It exposes a Default() baseline, Load
// for JSON files and FromEnv for the environment overlay; callers place
// the resulting Config into runtime.Options themselves.
//
// Example:
//
//	cfg := config.Default()
//	// Optionally load from file and overlay env vars
//	if fileCfg, err := config.Load("/etc/rocketspeed.json"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	// Pass cfg into runtime.Options
//	rt, _ := runtime.Open(runtime.Options{DataDir: "/var/lib/rocketspeed", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
package config

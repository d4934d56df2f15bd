package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// FromEnv overlays ROCKETSPEED_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("ROCKETSPEED_ALLOW_AUTO_CREATE_NAMESPACES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AllowAutoCreateNamespaces = b
		}
	}
	if v := os.Getenv("ROCKETSPEED_DEFAULT_NAMESPACE_NAME"); v != "" {
		cfg.DefaultNamespaceName = v
	}
	if v := os.Getenv("ROCKETSPEED_NAMESPACE_NAME_REGEX"); v != "" {
		cfg.NamespaceNameRegex = v
	}
	if v := os.Getenv("ROCKETSPEED_NAMESPACE_DEFAULTS_PARTITIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NamespaceDefaults.Partitions = n
		}
	}
	if v := os.Getenv("ROCKETSPEED_NAMESPACE_DEFAULTS_PAYLOAD_MAX_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NamespaceDefaults.PayloadMaxBytes = n
		}
	}
	if v := os.Getenv("ROCKETSPEED_NAMESPACE_DEFAULTS_HEADERS_MAX_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NamespaceDefaults.HeadersMaxBytes = n
		}
	}
	if v := os.Getenv("ROCKETSPEED_MAX_NAMESPACES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxNamespaces = n
		}
	}
	if v := os.Getenv("ROCKETSPEED_ALLOWED_NAMESPACES"); v != "" {
		parts := strings.Split(v, ",")
		cfg.AllowedNamespaces = nil
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.AllowedNamespaces = append(cfg.AllowedNamespaces, p)
			}
		}
	}
	if v := os.Getenv("ROCKETSPEED_SHARDING"); v != "" {
		cfg.Sharding = v
	}
	if v := os.Getenv("ROCKETSPEED_NUM_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NumShards = n
		}
	}
	if v := os.Getenv("ROCKETSPEED_MSGLOOP_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MsgLoopWorkers = n
		}
	}
	if v := os.Getenv("ROCKETSPEED_FLUSH_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FlushInterval = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("ROCKETSPEED_STREAM_SEND_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StreamSendBuffer = n
		}
	}
	if v := os.Getenv("ROCKETSPEED_TOPIC_CACHE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TopicTailerCacheBytes = n
		}
	}
	if v := os.Getenv("ROCKETSPEED_HOT_TOPIC_EXPR"); v != "" {
		cfg.HotTopicExpr = v
	}
	if v := os.Getenv("ROCKETSPEED_ADMIN_ADDR"); v != "" {
		cfg.AdminAddr = v
	}
	if v := os.Getenv("ROCKETSPEED_LEVEL"); v != "" {
		cfg.Level = v
	}
	if v := os.Getenv("ROCKETSPEED_FORMAT"); v != "" {
		cfg.Format = v
	}
}

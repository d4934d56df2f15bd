package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// Config is the top-level configuration for a RocketSpeed broker process.
type Config struct {
	AllowAutoCreateNamespaces bool              `json:"allowAutoCreateNamespaces"`
	DefaultNamespaceName      string            `json:"defaultNamespaceName"`
	NamespaceNameRegex        string            `json:"namespaceNameRegex"`
	NamespaceDefaults         NamespaceDefaults `json:"namespaceDefaults"`
	MaxNamespaces             int               `json:"maxNamespaces"`
	AllowedNamespaces         []string          `json:"allowedNamespaces"`

	// Sharding selects the ShardingStrategy implementation: "consistent" or
	// "rendezvous".
	Sharding string `json:"sharding"`
	// NumShards is the number of logical shards the router distributes
	// topics across, independent of the number of broker hosts.
	NumShards int `json:"numShards"`

	// MsgLoopWorkers is the size of the MsgLoop worker pool (C6).
	MsgLoopWorkers int `json:"msgLoopWorkers"`

	// FlushInterval is loaded from file and environment, but no component
	// reads it: control messages are written as they are sent, without a
	// coalescing window.
	FlushInterval time.Duration `json:"flushInterval"`
	// StreamSendBuffer bounds the per-stream outbound queue depth.
	StreamSendBuffer int `json:"streamSendBuffer"`

	// TopicTailerCacheBytes bounds the C8 per-room record cache.
	TopicTailerCacheBytes int64 `json:"topicTailerCacheBytes"`

	// RetentionBytesPerLog caps each (namespace, topic, partition) log's
	// on-disk size; 0 disables the background retention sweeper entirely.
	RetentionBytesPerLog int64 `json:"retentionBytesPerLog"`
	// RetentionSweepInterval is how often the sweeper re-checks every open
	// log against RetentionBytesPerLog.
	RetentionSweepInterval time.Duration `json:"retentionSweepInterval"`

	// HotTopicExpr is a CEL expression evaluated per (namespace, topic) to
	// mark a topic "hot" for the Proxy/Multiplexer (C7/D1). Empty disables
	// the predicate (every topic is treated as cold).
	HotTopicExpr string `json:"hotTopicExpr"`

	// AdminAddr is the bind address for the admin gRPC surface (D2).
	AdminAddr string `json:"adminAddr"`

	// Level and Format configure the process logger (pkg/log).
	Level  string `json:"level"`
	Format string `json:"format"`
}

// NamespaceDefaults captures per-namespace baseline limits.
type NamespaceDefaults struct {
	Partitions      int `json:"partitions"`
	PayloadMaxBytes int `json:"payloadMaxBytes"`
	HeadersMaxBytes int `json:"headersMaxBytes"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		AllowAutoCreateNamespaces: true,
		DefaultNamespaceName:      "default",
		NamespaceNameRegex:        "[a-z0-9-_]{1,64}",
		NamespaceDefaults: NamespaceDefaults{
			Partitions:      16,
			PayloadMaxBytes: 1 << 20,
			HeadersMaxBytes: 16 << 10,
		},
		MaxNamespaces:         0,
		Sharding:              "consistent",
		NumShards:             64,
		MsgLoopWorkers:        4,
		FlushInterval:         5 * time.Millisecond,
		StreamSendBuffer:      1024,
		TopicTailerCacheBytes: 64 << 20,
		AdminAddr:             "127.0.0.1:7780",
		Level:                 "info",
		Format:                "text",
	}
}

// Load reads configuration from a JSON file. If path is empty, returns
// defaults. A .yaml or .yml path is rejected; any other path is parsed as
// JSON.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	ext := filepath.Ext(path)
	switch ext {
	case ".yaml", ".yml":
		return Config{}, errors.New("config: yaml not supported; use JSON")
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

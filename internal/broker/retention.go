package broker

import (
	"context"
	"sync"
	"time"

	"github.com/BMDan/RocketSpeed/internal/logstore"
	"github.com/BMDan/RocketSpeed/pkg/log"
)

// retentionSweeper periodically trims every open log down to a byte budget,
// the way the teacher's ConsumerSweeper periodically sweeps expired
// consumers on a ticker: register/unregister what to sweep, run a
// cancellable goroutine, log what happened. A log trimmed this way is what
// makes LogTailer's poll loop observe and surface DeliverGap{kRetention}
// (internal/broker/logtailer.go's pollLoop) to subscribers who fell behind.
type retentionSweeper struct {
	maxBytesPerLog int64
	batchSize      int
	interval       time.Duration
	logger         log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	logs map[topicKey]*logstore.Log
}

// newRetentionSweeper builds a sweeper that trims every registered log to
// maxBytesPerLog on each tick of interval. maxBytesPerLog <= 0 disables
// trimming entirely; the caller shouldn't start such a sweeper.
func newRetentionSweeper(maxBytesPerLog int64, interval time.Duration, logger log.Logger) *retentionSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = log.NewLogger(log.WithLevel(log.InfoLevel))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &retentionSweeper{
		maxBytesPerLog: maxBytesPerLog,
		batchSize:      256,
		interval:       interval,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
		logs:           make(map[topicKey]*logstore.Log),
	}
}

// Start begins the sweeper's ticker loop.
func (rs *retentionSweeper) Start() {
	rs.wg.Add(1)
	go rs.run()
}

// Stop cancels the sweeper and waits for its loop to exit.
func (rs *retentionSweeper) Stop() {
	rs.cancel()
	rs.wg.Wait()
}

// Register adds l under key to the set of logs swept on every tick.
func (rs *retentionSweeper) Register(key topicKey, l *logstore.Log) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.logs[key] = l
}

func (rs *retentionSweeper) run() {
	defer rs.wg.Done()

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	rs.logger.Info("retention sweeper started",
		log.Field{Key: "interval", Value: rs.interval.String()},
		log.Field{Key: "max_bytes_per_log", Value: rs.maxBytesPerLog},
	)

	for {
		select {
		case <-rs.ctx.Done():
			rs.logger.Info("retention sweeper stopped")
			return
		case <-ticker.C:
			rs.sweep()
		}
	}
}

func (rs *retentionSweeper) sweep() {
	rs.mu.RLock()
	snapshot := make(map[topicKey]*logstore.Log, len(rs.logs))
	for key, l := range rs.logs {
		snapshot[key] = l
	}
	rs.mu.RUnlock()

	for key, l := range snapshot {
		deleted, err := l.TrimToMaxBytes(rs.ctx, rs.maxBytesPerLog, rs.batchSize, 0)
		if err != nil {
			rs.logger.Error("retention sweeper: trim failed",
				log.Field{Key: "namespace", Value: key.namespace},
				log.Field{Key: "topic", Value: key.topic},
				log.Field{Key: "error", Value: err.Error()},
			)
			continue
		}
		if deleted > 0 {
			rs.logger.Info("retention sweeper: trimmed log",
				log.Field{Key: "namespace", Value: key.namespace},
				log.Field{Key: "topic", Value: key.topic},
				log.Field{Key: "deleted", Value: deleted},
			)
		}
	}
}

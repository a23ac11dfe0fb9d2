package journal

import (
	"context"
	"log/slog"
	"time"

	"tycoon/internal/clock"
	"tycoon/internal/notify"

	"github.com/google/uuid"
)

type Clock interface {
	Now() clock.Time
}

type RecorderConfig struct {
	BatchSize  int
	FlushEvery time.Duration
	// Skip lists notification kinds that are not recorded.
	Skip []string
}

func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		BatchSize:  64,
		FlushEvery: 2 * time.Second,
		Skip:       []string{notify.KindHourAdvanced},
	}
}

// Recorder drains a notification feed into a Store in batches.
type Recorder struct {
	cfg       RecorderConfig
	store     Store
	sessionID uuid.UUID
	clock     Clock
	log       *slog.Logger
	skip      map[string]bool

	pending []Entry
	written int
	failed  int
}

func NewRecorder(cfg RecorderConfig, store Store, sessionID uuid.UUID, clk Clock, logger *slog.Logger) *Recorder {
	def := DefaultRecorderConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = def.FlushEvery
	}
	if logger == nil {
		logger = slog.Default()
	}
	skip := make(map[string]bool, len(cfg.Skip))
	for _, k := range cfg.Skip {
		skip[k] = true
	}
	return &Recorder{
		cfg:       cfg,
		store:     store,
		sessionID: sessionID,
		clock:     clk,
		log:       logger,
		skip:      skip,
	}
}

// Run records envelopes until ctx is done or feed closes, then flushes what
// is buffered.
func (r *Recorder) Run(ctx context.Context, feed <-chan notify.Envelope) error {
	ticker := time.NewTicker(r.cfg.FlushEvery)
	defer ticker.Stop()
	defer r.flush(context.WithoutCancel(ctx))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.flush(ctx)
		case env, ok := <-feed:
			if !ok {
				return nil
			}
			r.add(env)
			if len(r.pending) >= r.cfg.BatchSize {
				r.flush(ctx)
			}
		}
	}
}

func (r *Recorder) add(env notify.Envelope) {
	if r.skip[env.Type] {
		return
	}
	e, err := NewEntry(r.sessionID, r.clock.Now(), env)
	if err != nil {
		r.log.Error("journal entry encode failed", "kind", env.Type, "err", err)
		return
	}
	r.pending = append(r.pending, e)
}

func (r *Recorder) flush(ctx context.Context) {
	if len(r.pending) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.store.Append(ctx, r.pending); err != nil {
		r.failed += len(r.pending)
		r.log.Error("journal append failed", "entries", len(r.pending), "err", err)
	} else {
		r.written += len(r.pending)
	}
	r.pending = r.pending[:0]
}

// Written reports entries persisted so far. Only safe after Run returns.
func (r *Recorder) Written() int {
	return r.written
}

func (r *Recorder) Failed() int {
	return r.failed
}

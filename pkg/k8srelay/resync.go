package k8srelay

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// ResyncNotifier sends the single "last message" response that tells the
// watcher peer to disconnect and re-list, before the server side cancels.
// The concrete implementation lives with the gRPC transport (server
// package), since it needs to shape the actual RPC response message.
type ResyncNotifier interface {
	SendLastMessage() error
}

// ResyncChannel wraps a downstream stream so that, on Trigger, it performs
// the write-then-cancel dance of SPEC_FULL.md §4.6: notify the peer with a
// last-message response, then cancel the server-side stream so the read
// loop returns immediately. Trigger is idempotent and safe to call from the
// session loop (on waiting-set overflow) or from an external caller (e.g. a
// downstream backpressure signal).
type ResyncChannel struct {
	notifier  ResyncNotifier
	cancel    context.CancelFunc
	logger    *zap.Logger
	metrics   *Recorder
	triggered atomic.Bool
}

// NewResyncChannel creates a ResyncChannel. cancel is the CancelFunc for the
// context governing the session's stream read loop.
func NewResyncChannel(notifier ResyncNotifier, cancel context.CancelFunc, logger *zap.Logger, metrics *Recorder) *ResyncChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResyncChannel{
		notifier: notifier,
		cancel:   cancel,
		logger:   logger,
		metrics:  metrics,
	}
}

// Trigger fires the resync dance exactly once, even if called concurrently
// or repeatedly.
func (r *ResyncChannel) Trigger() {
	if !r.triggered.CompareAndSwap(false, true) {
		return
	}

	r.logger.Info("relay: notifying watcher to stop")
	if err := r.notifier.SendLastMessage(); err != nil {
		r.logger.Warn("relay: failed to notify watcher before cancel", zap.Error(err))
	}

	if r.metrics != nil {
		r.metrics.IncResync()
	}

	r.logger.Info("relay: canceling watcher stream")
	r.cancel()
}

// Triggered reports whether Trigger has already fired.
func (r *ResyncChannel) Triggered() bool {
	return r.triggered.Load()
}

package syncer

import (
	"context"
	"time"
)

// StartScheduler arms the background rebuild timer. A non-positive interval
// only stops any running scheduler; at most one is active per handle, and
// starting a new one cancels the previous timer.
func (h *Handle) StartScheduler(interval time.Duration) {
	h.schedMu.Lock()
	defer h.schedMu.Unlock()
	if h.schedCancel != nil {
		h.schedCancel()
		h.schedCancel = nil
	}
	if interval <= 0 {
		h.log.Info("auto rebuild disabled")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.schedCancel = cancel
	h.log.Info("auto rebuild scheduled", "interval", interval)
	go h.runScheduler(ctx, interval)
}

// StopScheduler cancels the pending timer, if any.
func (h *Handle) StopScheduler() {
	h.schedMu.Lock()
	defer h.schedMu.Unlock()
	if h.schedCancel != nil {
		h.schedCancel()
		h.schedCancel = nil
	}
}

func (h *Handle) runScheduler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed := h.Sync()
			h.log.Info("scheduled rebuild finished", "changed", changed)
		}
	}
}

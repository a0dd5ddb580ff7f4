package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/service"
)

// ExpiryWorker sweeps STARTED sessions whose exam duration has elapsed and
// finalizes them through the same end transition staff would trigger. This is
// the safety net for supervisors who walk away without pressing "end".
type ExpiryWorker struct {
	sessions    service.SessionStore
	roomService *service.RoomService
	interval    time.Duration
	log         zerolog.Logger
}

func NewExpiryWorker(sessions service.SessionStore, roomService *service.RoomService, interval time.Duration, log zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &ExpiryWorker{
		sessions:    sessions,
		roomService: roomService,
		interval:    interval,
		log:         log.With().Str("component", "expiry_worker").Logger(),
	}
}

func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("ExpiryWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ExpiryWorker stopping")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	expired, err := w.sessions.ListExpiredStarted(ctx, time.Now())
	if err != nil {
		w.log.Error().Err(err).Msg("Expired session sweep failed")
		return
	}

	for _, id := range expired {
		// End is idempotent; a concurrent staff end resolves cleanly.
		if _, err := w.roomService.End(ctx, id); err != nil {
			w.log.Error().Err(err).Str("session_id", id.String()).Msg("Auto-end failed")
			continue
		}
		w.log.Info().Str("session_id", id.String()).Msg("Session auto-ended after duration elapsed")
	}
}

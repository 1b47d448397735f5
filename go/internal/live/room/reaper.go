package room

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/models"
)

// Reap reasons
const (
	ReasonEmpty    = "empty"
	ReasonIdle     = "idle"
	ReasonFinished = "finished"
)

// Reaped describes a room removed by the reaper.
type Reaped struct {
	Session *models.Session
	Reason  string
}

// expiryReason returns why session should be dropped at now, or "" if it is live.
func (r *Registry) expiryReason(session *models.Session, now time.Time) string {
	if len(session.Members) == 0 {
		return ReasonEmpty
	}
	if session.State == models.SessionStateFinished && session.FinishedAt != nil &&
		now.Sub(*session.FinishedAt) >= r.config.FinishedGrace {
		return ReasonFinished
	}
	if r.config.IdleTimeout > 0 && now.Sub(session.LastActivityAt) >= r.config.IdleTimeout {
		return ReasonIdle
	}
	return ""
}

// Reap removes empty, idle and finished rooms.
func (r *Registry) Reap(ctx context.Context) []Reaped {
	r.mu.Lock()
	now := r.clock.Now()
	var reaped []Reaped
	for pin, session := range r.rooms {
		reason := r.expiryReason(session, now)
		if reason == "" {
			continue
		}
		delete(r.rooms, pin)
		reaped = append(reaped, Reaped{Session: session.Clone(), Reason: reason})
	}
	r.mu.Unlock()

	for _, rp := range reaped {
		r.remove(ctx, rp.Session.PIN)
		log.Info().
			Str("pin", rp.Session.PIN).
			Str("reason", rp.Reason).
			Int("members", len(rp.Session.Members)).
			Msg("room reaped")
	}
	return reaped
}

// RunReaper sweeps the registry every ReapInterval until ctx is cancelled.
// onReap, if set, is called for every reaped room.
func (r *Registry) RunReaper(ctx context.Context, onReap func(context.Context, Reaped)) {
	interval := r.config.ReapInterval
	if interval <= 0 {
		interval = DefaultConfig().ReapInterval
	}
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Dur("idle_timeout", r.config.IdleTimeout).Msg("room reaper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("room reaper shutting down")
			return
		case <-ticker.Chan():
			for _, rp := range r.Reap(ctx) {
				if onReap != nil {
					onReap(ctx, rp)
				}
			}
		}
	}
}

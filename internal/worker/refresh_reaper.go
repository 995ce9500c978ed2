package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpiredTokenDeleter removes refresh token records past their expiry.
type ExpiredTokenDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RefreshTokenReaper periodically purges expired refresh token records,
// including records whose token never reached the client.
type RefreshTokenReaper struct {
	store    ExpiredTokenDeleter
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewRefreshTokenReaper builds a reaper sweeping every interval.
func NewRefreshTokenReaper(store ExpiredTokenDeleter, interval time.Duration, logger *zap.Logger) *RefreshTokenReaper {
	return &RefreshTokenReaper{store: store, interval: interval, logger: logger, now: time.Now}
}

// Run sweeps once immediately and then on every tick until ctx is done.
// A non-positive interval disables the reaper.
func (r *RefreshTokenReaper) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("refresh token reaper disabled")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.sweepAndLog(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep deletes every record expired at the current time.
func (r *RefreshTokenReaper) Sweep(ctx context.Context) (int64, error) {
	return r.store.DeleteExpired(ctx, r.now())
}

func (r *RefreshTokenReaper) sweepAndLog(ctx context.Context) {
	removed, err := r.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("refresh token sweep failed", zap.Error(err))
		}
		return
	}
	if removed > 0 {
		r.logger.Info("expired refresh tokens removed", zap.Int64("count", removed))
	}
}

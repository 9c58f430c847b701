package limiters

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/internal/rate"
)

type RecoveryConfig struct {
	EnableIdentifierThrottle bool
	EnableIPThrottle         bool
	Window                   time.Duration
	MaxRequests              int
}

// RecoveryLimiter throttles forgotten-password requests per identity and per origin IP.
type RecoveryLimiter struct {
	byIdentity *rate.Window
	byIP       *rate.Window
}

func NewRecoveryLimiter(redisClient redis.UniversalClient, cfg RecoveryConfig) *RecoveryLimiter {
	l := &RecoveryLimiter{}
	if cfg.EnableIdentifierThrottle {
		l.byIdentity = rate.NewWindow(redisClient, "arq", cfg.MaxRequests, cfg.Window)
	}
	if cfg.EnableIPThrottle {
		l.byIP = rate.NewWindow(redisClient, "arqi", cfg.MaxRequests, cfg.Window)
	}
	return l
}

// CheckRequest counts one request and returns rate.ErrRateLimited past the budget.
func (l *RecoveryLimiter) CheckRequest(ctx context.Context, identity, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.byIdentity.Allow(ctx, identity); err != nil {
		return err
	}
	return l.byIP.Allow(ctx, ip)
}

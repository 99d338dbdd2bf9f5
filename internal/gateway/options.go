package gateway

import (
	"context"
	"time"

	"github.com/okian/mudra/pkg/logger"

	"github.com/google/uuid"
)

// Default gateway configuration.
const (
	defaultRateLimit    = 60
	defaultRateWindow   = time.Minute
	defaultDailyTarget  = 1
	defaultWeeklyTarget = 3
	defaultBaseRunXP    = 100
	defaultQuestXP      = 50
)

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.log = l
		}
	}
}

// WithClock overrides the time source. Used by tests to pin windows.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// WithTokenFactory overrides run-token generation.
func WithTokenFactory(fn func() string) Option {
	return func(g *Gateway) {
		if fn != nil {
			g.newToken = fn
		}
	}
}

// WithRateLimit sets the per-identity call budget for one fixed window.
func WithRateLimit(maxCalls int, window time.Duration) Option {
	return func(g *Gateway) {
		if maxCalls > 0 {
			g.rateLimit = maxCalls
		}
		if window > 0 {
			g.rateWindow = window
		}
	}
}

// WithQuestTargets sets the per-period completion targets.
func WithQuestTargets(daily, weekly int) Option {
	return func(g *Gateway) {
		if daily > 0 {
			g.dailyTarget = daily
		}
		if weekly > 0 {
			g.weeklyTarget = weekly
		}
	}
}

// WithRewards sets the base XP amounts before the streak bonus applies.
func WithRewards(runXP, questXP int64) Option {
	return func(g *Gateway) {
		if runXP > 0 {
			g.baseRunXP = runXP
		}
		if questXP > 0 {
			g.questXP = questXP
		}
	}
}

func defaultTokenFactory() string {
	return uuid.NewString()
}

// nopLogger discards everything. Default until WithLogger is applied.
type nopLogger struct{}

func (nopLogger) Info(context.Context, string, ...logger.Field)  {}
func (nopLogger) Error(context.Context, string, ...logger.Field) {}
func (nopLogger) Debug(context.Context, string, ...logger.Field) {}
func (nopLogger) Warn(context.Context, string, ...logger.Field)  {}
func (nopLogger) Named(string) logger.Logger                     { return nopLogger{} }

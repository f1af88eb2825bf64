package cache

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Gate applies sliding window limits backed by counter keys. Every check
// fails open: a cache outage never blocks the guarded operation.
type Gate struct {
	client *Client
	logger *zap.Logger
}

func NewGate(client *Client, logger *zap.Logger) *Gate {
	return &Gate{client: client, logger: logger}
}

// Decision is the outcome of one gate check.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int
	RetryAfter time.Duration
}

// Allow counts one attempt against key and reports whether the caller is
// still within limit for the rolling window.
func (g *Gate) Allow(ctx context.Context, key string, limit int, window time.Duration) Decision {
	count, err := g.client.Incr(ctx, key, window)
	if err != nil {
		g.logger.Warn("rate gate unavailable, failing open",
			zap.String("key", key), zap.Error(err))
		return Decision{Allowed: true, Limit: limit}
	}

	d := Decision{Allowed: count <= int64(limit), Count: count, Limit: limit}
	if !d.Allowed {
		if ttl, err := g.client.TTL(ctx, key); err == nil {
			d.RetryAfter = ttl
		}
	}
	return d
}

// LoginKey guards login attempts per account.
func LoginKey(email string) string { return "rl:login:" + strings.ToLower(email) }

// RegisterKey guards account creation per client IP.
func RegisterKey(ip string) string { return "rl:register:" + ip }

// GeocodeKey guards geocoder calls per client IP.
func GeocodeKey(ip string) string { return "rl:geocode:" + ip }

// ReportsKey guards report submission per user.
func ReportsKey(userID string) string { return "rate:reports:" + userID }

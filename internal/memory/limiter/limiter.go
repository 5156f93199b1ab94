package limiter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/shimonpozd/astra-sub000/internal/models"
	"github.com/shimonpozd/astra-sub000/pkg/logger"
)

// Limiter enforces the recall admission rules: a per-session cooldown
// between recalls, a per-user budget per calendar minute and a
// turn-based cooldown on proactive tactics. All checks fail open: if
// Redis is unreachable the request is admitted and a warning logged,
// because recall staying up matters more than strict accounting.
type Limiter struct {
	rdb         *redis.Client
	log         *logger.Logger
	cooldown    time.Duration
	perMinute   int
	tacticTurns int64
}

// New creates a Limiter.
func New(rdb *redis.Client, log *logger.Logger, cooldownSeconds, perMinute, tacticTurns int) *Limiter {
	return &Limiter{
		rdb:         rdb,
		log:         log,
		cooldown:    time.Duration(cooldownSeconds) * time.Second,
		perMinute:   perMinute,
		tacticTurns: int64(tacticTurns),
	}
}

// Allow admits or rejects a recall request. A rejection is a
// models.RateLimitError carrying the reason and a retry-after hint.
// Allow only reads the cooldown state; the cooldown itself starts when
// MarkCompleted is called after a successful recall, so a rejected or
// failed request never burns it.
func (l *Limiter) Allow(ctx context.Context, userID, sessionID string, now time.Time) error {
	if sessionID != "" {
		if err := l.checkSessionCooldown(ctx, sessionID); err != nil {
			return err
		}
	}
	return l.checkUserBudget(ctx, userID, now)
}

// MarkCompleted starts the session cooldown window. Call it once a
// recall has completed successfully. Best effort; a Redis failure only
// means the next request is not cooled down.
func (l *Limiter) MarkCompleted(ctx context.Context, sessionID string, now time.Time) {
	if sessionID == "" {
		return
	}
	key := "rl:sess:" + sessionID
	if err := l.rdb.Set(ctx, key, now.Unix(), l.cooldown).Err(); err != nil {
		l.failOpen(err, "session cooldown mark failed")
	}
}

func (l *Limiter) checkSessionCooldown(ctx context.Context, sessionID string) error {
	key := "rl:sess:" + sessionID
	ttl, err := l.rdb.TTL(ctx, key).Result()
	if err != nil {
		l.failOpen(err, "session cooldown check failed")
		return nil
	}
	// -2 means no key, -1 means no expiry; either way no active cooldown
	if ttl <= 0 {
		return nil
	}
	return &models.RateLimitError{Reason: "session cooldown", RetryAfter: ttl}
}

func (l *Limiter) checkUserBudget(ctx context.Context, userID string, now time.Time) error {
	epochMinute := now.Unix() / 60
	key := fmt.Sprintf("rl:user:%s:%d", userID, epochMinute)

	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		l.failOpen(err, "user budget check failed")
		return nil
	}
	if n == 1 {
		// generous expiry; the key is minute-scoped anyway
		l.rdb.Expire(ctx, key, 2*time.Minute)
	}
	if n > int64(l.perMinute) {
		retryAfter := time.Duration(60-(now.Unix()%60)) * time.Second
		return &models.RateLimitError{Reason: "user budget exceeded", RetryAfter: retryAfter}
	}
	return nil
}

// BumpTurn advances the session turn counter. Called once per dialogue
// update; the counter anchors tactic cooldowns.
func (l *Limiter) BumpTurn(ctx context.Context, sessionID string) {
	if err := l.rdb.Incr(ctx, "rl:turn:"+sessionID).Err(); err != nil {
		l.failOpen(err, "turn counter bump failed")
	}
}

// MarkTactic records that a proactive tactic was used on the current
// turn of the session.
func (l *Limiter) MarkTactic(ctx context.Context, sessionID, tactic string) {
	turn, err := l.currentTurn(ctx, sessionID)
	if err != nil {
		l.failOpen(err, "tactic mark failed")
		return
	}
	key := "rl:tactic:" + sessionID + ":" + tactic
	if err := l.rdb.Set(ctx, key, turn, 24*time.Hour).Err(); err != nil {
		l.failOpen(err, "tactic mark failed")
	}
}

// FilterTactics drops tactics still inside their turn cooldown. On any
// Redis error the full list passes through.
func (l *Limiter) FilterTactics(ctx context.Context, sessionID string, tactics []string) []string {
	turn, err := l.currentTurn(ctx, sessionID)
	if err != nil {
		l.failOpen(err, "tactic filter failed")
		return tactics
	}

	allowed := make([]string, 0, len(tactics))
	for _, tactic := range tactics {
		raw, err := l.rdb.Get(ctx, "rl:tactic:"+sessionID+":"+tactic).Result()
		if err == redis.Nil {
			allowed = append(allowed, tactic)
			continue
		}
		if err != nil {
			l.failOpen(err, "tactic filter failed")
			allowed = append(allowed, tactic)
			continue
		}
		usedAt, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || turn-usedAt >= l.tacticTurns {
			allowed = append(allowed, tactic)
		}
	}
	return allowed
}

func (l *Limiter) currentTurn(ctx context.Context, sessionID string) (int64, error) {
	raw, err := l.rdb.Get(ctx, "rl:turn:"+sessionID).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (l *Limiter) failOpen(err error, message string) {
	l.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "limiter"}).
		Warn(message + ", admitting request")
}

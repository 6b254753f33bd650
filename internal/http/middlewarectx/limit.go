package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/goflexconnect/internal/http/response"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
)

// DefaultLimiterIdle время без запросов, после которого ограничитель
// пользователя удаляется.
const DefaultLimiterIdle = 10 * time.Minute

type userBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UserLimiter хранит отдельный token bucket на каждого пользователя.
type UserLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu       sync.Mutex
	limiters map[string]*userBucket
}

// NewUserLimiter создаёт ограничитель: limit запросов в секунду, burst всплеск.
func NewUserLimiter(limit float64, burst int) *UserLimiter {
	return &UserLimiter{
		limit:    rate.Limit(limit),
		burst:    burst,
		now:      time.Now,
		limiters: make(map[string]*userBucket),
	}
}

// Allow расходует один токен пользователя key.
func (l *UserLimiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	b, ok := l.limiters[key]
	if !ok {
		b = &userBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

// Sweep удаляет ограничители, к которым не обращались дольше idle, и
// возвращает число удалённых.
func (l *UserLimiter) Sweep(idle time.Duration) int {
	cutoff := l.now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, b := range l.limiters {
		if b.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}

// Len число отслеживаемых пользователей.
func (l *UserLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// RunSweeper периодически вызывает Sweep до отмены ctx.
func (l *UserLimiter) RunSweeper(ctx context.Context, every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(idle)
		}
	}
}

// RateLimitMiddleware ограничивает частоту запросов по пользователю из сессии,
// а для запросов без сессии по адресу клиента.
func RateLimitMiddleware(limiter *UserLimiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if session, ok := SessionFrom(r.Context()); ok {
				key = session.UserID
			}
			if !limiter.Allow(key) {
				log.Error("too many requests", sl.UserID(key))
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, response.Error("too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

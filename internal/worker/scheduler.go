// Package worker is the Scheduled Workers component (spec.md §2 Component
// H, §4.6): the five background jobs that keep the Credential Pool Engine
// and Quota Governor's hot state honest over time -- daily counter
// rollover, cooling restoration, the two upstream health-checks, and the
// Antigravity quota-cache refresh.
//
// Grounded on the teacher's go-backend/internal/cloudcode/
// rate_limit_state.go StartRateLimitStateCleanup ticker-goroutine pattern,
// restructured per the Design Notes (spec.md §9): the teacher starts its
// ticker from an unexported init-time goroutine with no way to stop it;
// here a Scheduler is an explicit value with Start(ctx)/Stop() so cmd/server
// can wire it into the boot sequence and graceful shutdown like every other
// component.
package worker

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/relaymesh/aiproxy/internal/coordination"
	"github.com/relaymesh/aiproxy/internal/pool"
	"github.com/relaymesh/aiproxy/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Scheduler owns the five background jobs spec.md §4.6 describes. One
// Scheduler per process, started once at boot and stopped during graceful
// shutdown.
type Scheduler struct {
	coord     *coordination.Client
	db        *store.Store
	pools     *pool.Engine
	refresher *pool.Refresher
	log       *zap.Logger

	antigravityBaseURL string
	httpClient         *http.Client

	quotaConcurrency int

	stop chan struct{}
	wg   sync.WaitGroup
}

func New(coord *coordination.Client, db *store.Store, pools *pool.Engine, refresher *pool.Refresher, antigravityBaseURL string, log *zap.Logger) *Scheduler {
	return &Scheduler{
		coord:              coord,
		db:                 db,
		pools:              pools,
		refresher:          refresher,
		antigravityBaseURL: antigravityBaseURL,
		httpClient:         &http.Client{Timeout: 10 * time.Second},
		log:                log,
		quotaConcurrency:   30,
		stop:               make(chan struct{}),
	}
}

// Start launches all five jobs as goroutines ticking on their own schedule.
// It returns immediately; call Stop to shut them down.
func (s *Scheduler) Start(ctx context.Context) {
	s.runTicking(ctx, "daily_reset", untilNextUTC8Midnight, 24*time.Hour, s.dailyReset)
	s.runTicking(ctx, "cooling_restoration", func() time.Duration { return 0 }, 10*time.Minute, s.coolingRestoration)
	s.runTicking(ctx, "credential_health_check", untilNextUTC8At3AM, 24*time.Hour, s.credentialHealthCheck)
	s.runTicking(ctx, "antigravity_health_check", untilNextUTC8At3AM, 24*time.Hour, s.antigravityHealthCheck)
	s.runTicking(ctx, "quota_cache_refresh", func() time.Duration { return 0 }, 30*time.Minute, s.quotaCacheRefresh)
}

// Stop signals every running job to exit and waits for them to return.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// runTicking runs job once after an initial delay (firstDelay), then every
// period until Stop is called. Each invocation gets a fresh context
// independent of ctx's eventual cancellation, since scheduled jobs
// complete their current unit of work before observing cancellation
// (spec.md §5 "Scheduled jobs are never cancelled mid-credential").
func (s *Scheduler) runTicking(ctx context.Context, name string, firstDelay func() time.Duration, period time.Duration, job func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(firstDelay())
		defer timer.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-timer.C:
				s.runOnce(context.WithoutCancel(ctx), name, job)
				timer.Reset(period)
			}
		}
	}()
}

func (s *Scheduler) runOnce(ctx context.Context, name string, job func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("worker: job panicked", zap.String("job", name), zap.Any("panic", r))
		}
	}()
	start := time.Now()
	job(ctx)
	s.log.Info("worker: job completed", zap.String("job", name), zap.Duration("elapsed", time.Since(start)))
}

var utc8 = time.FixedZone("UTC+8", 8*60*60)

func untilNextUTC8Midnight() time.Duration {
	now := time.Now().In(utc8)
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, utc8).Add(24 * time.Hour)
	return next.Sub(now)
}

func untilNextUTC8At3AM() time.Duration {
	now := time.Now().In(utc8)
	next := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, utc8)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

func jitter(minMs, maxMs int) time.Duration {
	return time.Duration(minMs+rand.Intn(maxMs-minMs+1)) * time.Millisecond
}

func sleepOrStop(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Scheduler) errgroupWithCap() *errgroup.Group {
	g := &errgroup.Group{}
	g.SetLimit(s.quotaConcurrency)
	return g
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/patronage/internal/auth/domain"
	"github.com/smallbiznis/patronage/internal/clock"
	collectivedomain "github.com/smallbiznis/patronage/internal/collective/domain"
	"github.com/smallbiznis/patronage/internal/config"
	obsmetrics "github.com/smallbiznis/patronage/internal/observability/metrics"
	paymentmethoddomain "github.com/smallbiznis/patronage/internal/paymentmethod/domain"
	"github.com/smallbiznis/patronage/internal/providers/email"
	"github.com/smallbiznis/patronage/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidConfig = errors.New("invalid_scheduler_config")
	ErrUnknownJob    = errors.New("unknown_job")
)

const lockKeyPrefix = "patronage:scheduler:"

// JobLocker claims a job period across replicas.
type JobLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	AppConfig      config.Config
	Config         Config `optional:"true"`
	GenID          *snowflake.Node
	Clock          clock.Clock
	Locker         *ratelimit.Locker `optional:"true"`
	Email          email.Provider
	PaymentMethods paymentmethoddomain.Repository
	Collectives    collectivedomain.Service
	Users          authdomain.Service
}

type Scheduler struct {
	db             *gorm.DB
	log            *zap.Logger
	appCfg         config.Config
	cfg            Config
	genID          *snowflake.Node
	clock          clock.Clock
	locker         JobLocker
	email          email.Provider
	paymentMethods paymentmethoddomain.Repository
	collectives    collectivedomain.Service
	users          authdomain.Service

	mu          sync.Mutex
	lastPeriods map[string]string
}

// job runs at most once per period. period maps a time to the window key,
// e.g. "2026-03" for monthly jobs.
type job struct {
	name     string
	resource string
	period   func(now time.Time) string
	ttl      time.Duration
	run      func(ctx context.Context, run *jobRun) error
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Email == nil ||
		p.PaymentMethods == nil || p.Collectives == nil || p.Users == nil {
		return nil, ErrInvalidConfig
	}
	s := &Scheduler{
		db:             p.DB,
		log:            p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		appCfg:         p.AppConfig,
		cfg:            p.Config.withDefaults(),
		genID:          p.GenID,
		clock:          p.Clock,
		email:          p.Email,
		paymentMethods: p.PaymentMethods,
		collectives:    p.Collectives,
		users:          p.Users,
		lastPeriods:    map[string]string{},
	}
	if p.Locker != nil {
		s.locker = p.Locker
	}
	return s, nil
}

func monthly(now time.Time) string {
	return now.UTC().Format("2006-01")
}

func (s *Scheduler) jobs() []job {
	return []job{
		{name: JobExpiringCards, resource: "payment_methods", period: monthly, ttl: 32 * 24 * time.Hour, run: s.expiringCardsJob},
	}
}

// RunOnce runs every enabled job whose current period has not been claimed yet.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var err error
	now := s.clock.Now()
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		release, claimed, claimErr := s.claim(ctx, j, now)
		if claimErr != nil {
			s.log.Warn("failed to claim job", zap.String("job", j.name), zap.Error(claimErr))
			continue
		}
		if !claimed {
			continue
		}
		if jobErr := s.execute(ctx, j); jobErr != nil {
			release()
			err = errors.Join(err, jobErr)
		}
	}
	return err
}

// RunJob runs the named job immediately, without claiming its period. Used by
// one-shot CLI invocations.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	for _, j := range s.jobs() {
		if strings.EqualFold(j.name, name) {
			return s.execute(ctx, j)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) execute(parent context.Context, j job) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx, run := s.newJobRun(ctx, j.name)
	s.logJobStart(ctx, run)

	err := j.run(ctx, run)

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.ObserveJobRun(j.name, s.clock.Now().Sub(run.startedAt), err)
	schedMetrics.AddBatchProcessed(j.name, j.resource, run.processedCount)
	s.logJobFinish(ctx, run, err)

	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	return nil
}

// claim marks the job's current period as taken. With redis the claim is
// shared by all replicas and expires with the period; without it the claim
// is kept in memory.
func (s *Scheduler) claim(ctx context.Context, j job, now time.Time) (func(), bool, error) {
	period := j.period(now)

	if s.locker == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.lastPeriods[j.name] == period {
			return nil, false, nil
		}
		previous := s.lastPeriods[j.name]
		s.lastPeriods[j.name] = period
		release := func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.lastPeriods[j.name] = previous
		}
		return release, true, nil
	}

	key := lockKeyPrefix + j.name + ":" + period
	token, ok, err := s.locker.TryLock(ctx, key, j.ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("failed to release job claim", zap.String("job", j.name), zap.Error(err))
		}
	}
	return release, true, nil
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

package medals

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"medalchain/internal/accounts"
	"medalchain/internal/chain"
)

// DefaultSyncInterval is how often the scheduler mirrors on-chain counts into the account store.
const DefaultSyncInterval = 5 * time.Minute

// SyncObserver receives one notification per sweep.
type SyncObserver interface {
	ObserveSync(synced, failed int, elapsed time.Duration)
}

type nopSyncObserver struct{}

func (nopSyncObserver) ObserveSync(int, int, time.Duration) {}

// SyncReport summarizes one sweep.
type SyncReport struct {
	Synced int
	Failed int
}

// Scheduler periodically overwrites the mirrored medal counts of every known account with the contract's.
type Scheduler struct {
	reader   *Reader
	store    accounts.Store
	guard    *chain.KeyedMutex
	clock    clock.Clock
	interval time.Duration
	observer SyncObserver
	log      *zap.Logger
}

type SchedulerConfig struct {
	Interval time.Duration
	// Guard must be the one shared with the Distributor.
	Guard    *chain.KeyedMutex
	Clock    clock.Clock
	Observer SyncObserver
}

func NewScheduler(reader *Reader, store accounts.Store, cfg SchedulerConfig, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSyncInterval
	}
	if cfg.Guard == nil {
		cfg.Guard = chain.NewKeyedMutex()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopSyncObserver{}
	}
	return &Scheduler{
		reader:   reader,
		store:    store,
		guard:    cfg.Guard,
		clock:    cfg.Clock,
		interval: cfg.Interval,
		observer: cfg.Observer,
		log:      log,
	}
}

// Run sweeps once per interval until ctx is done. The first sweep happens after one interval.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.log.Info("medal sync scheduler started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("medal sync scheduler stopped")
			return nil
		case <-ticker.C:
			s.SyncOnce(ctx)
		}
	}
}

// SyncOnce reconciles every known account. A failure for one account is logged and skipped.
func (s *Scheduler) SyncOnce(ctx context.Context) SyncReport {
	start := s.clock.Now()
	var report SyncReport

	addrs, err := s.store.List(ctx)
	if err != nil {
		s.log.Error("list accounts for medal sync", zap.Error(err))
		s.observer.ObserveSync(0, 0, s.clock.Since(start))
		return report
	}

	for _, addr := range addrs {
		if ctx.Err() != nil {
			break
		}
		if err := s.syncAccount(ctx, addr); err != nil {
			report.Failed++
			s.log.Warn("medal sync failed", zap.Stringer("account", addr), zap.Error(err))
			continue
		}
		report.Synced++
	}

	elapsed := s.clock.Since(start)
	s.observer.ObserveSync(report.Synced, report.Failed, elapsed)
	s.log.Debug("medal sync finished",
		zap.Int("synced", report.Synced),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", elapsed),
	)
	return report
}

func (s *Scheduler) syncAccount(ctx context.Context, addr chain.Address) error {
	addr, err := chain.Normalize(string(addr))
	if err != nil {
		return err
	}
	unlock := s.guard.Lock(addr)
	defer unlock()

	counts, err := s.reader.UserMedals(ctx, addr)
	if err != nil {
		return err
	}
	return s.store.SetMedals(ctx, addr, counts, s.clock.Now())
}

// Package cron runs the recurring background jobs, currently the daily
// low-stock sweep.
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mvdwal/meditrack/internal/config"
	"github.com/mvdwal/meditrack/internal/mail"
	"github.com/mvdwal/meditrack/internal/storage"
)

// Runner schedules and executes background jobs.
type Runner struct {
	cfg     config.CronConfig
	store   *storage.Store
	mailer  mail.Mailer
	logger  *zap.Logger
	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

func NewRunner(cfg config.CronConfig, store *storage.Store, mailer mail.Mailer, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		store:  store,
		mailer: mailer,
		logger: logger,
		cron:   cron.New(),
	}
}

// Start registers the jobs and begins the scheduler.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("cron runner already running")
	}

	_, err := r.cron.AddFunc(r.cfg.ExpirySweep, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		r.RunExpirySweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid expiry sweep schedule %q: %w", r.cfg.ExpirySweep, err)
	}

	r.cron.Start()
	r.running = true
	r.logger.Info("cron runner started",
		zap.String("expiry_sweep", r.cfg.ExpirySweep),
		zap.Int("warn_days", r.cfg.WarnDays),
	)
	return nil
}

// Stop halts the scheduler and waits for in-flight jobs.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	<-r.cron.Stop().Done()
	r.running = false
	r.logger.Info("cron runner stopped")
}

// RunExpirySweep checks every account's projected medicine run-out and
// mails a warning to verified accounts with medicines inside the warn
// window. Exported so the CLI can trigger it on demand.
func (r *Runner) RunExpirySweep(ctx context.Context) {
	users, err := r.store.ListUsers()
	if err != nil {
		r.logger.Error("expiry sweep: failed to list users", zap.Error(err))
		return
	}

	now := time.Now()
	warned := 0
	for _, user := range users {
		if ctx.Err() != nil {
			r.logger.Warn("expiry sweep cancelled", zap.Error(ctx.Err()))
			return
		}
		if user.Email == "" || !user.Active {
			continue
		}

		items, err := r.lowStockItems(user.ID, now)
		if err != nil {
			r.logger.Error("expiry sweep: projection failed",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
			continue
		}
		if len(items) == 0 {
			continue
		}

		msg, err := mail.LowStock(user.Email, user.Username, items)
		if err != nil {
			r.logger.Error("expiry sweep: failed to build mail", zap.Error(err))
			continue
		}
		if err := r.mailer.Send(ctx, msg); err != nil {
			continue // Send already logged it.
		}
		warned++
	}

	r.logger.Info("expiry sweep complete",
		zap.Int("users", len(users)),
		zap.Int("warned", warned),
	)
}

func (r *Runner) lowStockItems(userID string, now time.Time) ([]mail.LowStockItem, error) {
	projections, err := r.store.GetMedicineExpiry(userID, now)
	if err != nil {
		return nil, err
	}

	cutoff := now.AddDate(0, 0, r.cfg.WarnDays)
	var items []mail.LowStockItem
	for _, p := range projections {
		if p.ExpiresAt == nil || p.ExpiresAt.After(cutoff) {
			continue
		}
		days := int(p.ExpiresAt.Sub(now).Hours() / 24)
		if days < 0 {
			days = 0
		}
		items = append(items, mail.LowStockItem{
			Name:     p.Medicine.Name,
			DaysLeft: days,
		})
	}
	return items, nil
}

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"trailrun-backend/internal/store"
)

// Cleanup deletes audits older than retentionDays.
func Cleanup(ctx context.Context, s *store.Store, retentionDays int) (int64, error) {
	pb := s.Dialect.NewParamBuilder()
	whereExpr := s.Dialect.IntervalDeleteExpr("created_at", pb, retentionDays)
	n, err := store.Exec(ctx, s.DB, "DELETE FROM _bulk_audit WHERE "+whereExpr, pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return n, nil
}

// Janitor runs Cleanup on a fixed interval.
type Janitor struct {
	store         *store.Store
	retentionDays int
	log           *logrus.Logger
	ticker        *time.Ticker
	done          chan struct{}
}

func NewJanitor(s *store.Store, retentionDays int, log *logrus.Logger) *Janitor {
	return &Janitor{store: s, retentionDays: retentionDays, log: log}
}

// Start begins the background ticker.
func (j *Janitor) Start(every time.Duration) {
	j.done = make(chan struct{})
	j.ticker = time.NewTicker(every)
	go j.run()
	j.log.WithField("retention_days", j.retentionDays).Info("audit janitor started")
}

// Stop halts the background ticker.
func (j *Janitor) Stop() {
	if j.ticker != nil {
		j.ticker.Stop()
	}
	if j.done != nil {
		close(j.done)
	}
}

func (j *Janitor) run() {
	for {
		select {
		case <-j.done:
			return
		case <-j.ticker.C:
			n, err := Cleanup(context.Background(), j.store, j.retentionDays)
			if err != nil {
				j.log.WithError(err).Error("audit cleanup failed")
				continue
			}
			if n > 0 {
				j.log.WithField("deleted", n).Info("audit cleanup")
			}
		}
	}
}

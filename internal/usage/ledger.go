// Package usage enforces the per-plan monthly generation quota.
package usage

import (
	"context"
	"time"

	"feedcast/internal/models"
)

// Store is the subset of db.Store the ledger reads and writes.
type Store interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUsageCount(ctx context.Context, userID int64, month string) (int, error)
	IncrementUsage(ctx context.Context, userID int64, month string) (int, error)
}

// Limits maps a plan to its monthly generation allowance.
type Limits map[models.Plan]int

func DefaultLimits() Limits {
	return Limits{models.PlanFree: 5, models.PlanPro: 100}
}

// For returns the limit of plan. Unknown plans get the free allowance.
func (l Limits) For(plan models.Plan) int {
	if n, ok := l[plan]; ok {
		return n
	}
	return l[models.PlanFree]
}

// Status is a snapshot of a user's usage for the current month.
type Status struct {
	Allowed bool        `json:"-"`
	Used    int         `json:"used"`
	Limit   int         `json:"limit"`
	Plan    models.Plan `json:"plan"`
}

type Ledger struct {
	store  Store
	limits Limits
	now    func() time.Time
}

type Option func(*Ledger)

// WithClock overrides the time source used to pick the current month.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func NewLedger(store Store, limits Limits, opts ...Option) *Ledger {
	if limits == nil {
		limits = DefaultLimits()
	}
	l := &Ledger{store: store, limits: limits, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MonthKey is the usage bucket of t, always computed in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func (l *Ledger) Month() string {
	return MonthKey(l.now())
}

// CheckUsageLimit reports whether the user may start another generation this month.
func (l *Ledger) CheckUsageLimit(ctx context.Context, userID int64) (Status, error) {
	user, err := l.store.GetUserByID(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	used, err := l.store.GetUsageCount(ctx, userID, l.Month())
	if err != nil {
		return Status{}, err
	}
	limit := l.limits.For(user.Plan)
	return Status{Allowed: used < limit, Used: used, Limit: limit, Plan: user.Plan}, nil
}

// IncrementUsage bumps the current month's counter outside of a finalize
// transaction and returns the new value.
func (l *Ledger) IncrementUsage(ctx context.Context, userID int64) (int, error) {
	return l.store.IncrementUsage(ctx, userID, l.Month())
}

// Package store owns the authoritative in-memory dashboard state:
// transactions, tasks, goals, user stats and configuration. Every mutation
// is mirrored to the key-value persistence layer once the initial load has
// completed and the user is onboarded.
package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"grana/internal/core"
	applog "grana/internal/log"
	"grana/internal/storage"
)

// Store holds the dashboard state. Safe for concurrent use; mutations are
// serialized under one mutex and persistence writes are last-write-wins.
type Store struct {
	mu       sync.Mutex
	kv       storage.KV
	notifier Notifier
	logger   *applog.Logger
	now      func() time.Time

	loaded    bool
	onboarded bool

	userName            string
	stats               core.UserStats
	transactions        []core.Transaction
	tasks               []core.Task
	goals               []core.Goal
	monthlyLimitCents   int64
	initialReserveCents int64
}

type Option func(*Store)

// WithNotifier registers an event sink for qualifying transitions.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *applog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func New(kv storage.KV, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		logger: applog.New(applog.Config{Component: applog.ComponentStore}),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load restores all persisted entries. A missing identity entry leaves the
// store in onboarding mode with empty collections and default config. Any
// corrupt or missing entry falls back to its default independently, so one
// bad key never blocks the others.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, err := s.kv.Get(ctx, storage.KeyUserName)
	if err != nil {
		if err != storage.ErrNotFound {
			s.logger.WarnContext(ctx, "Identity entry unreadable, starting onboarding", "error", err)
		}
		s.loaded = true
		s.onboarded = false
		return nil
	}

	s.userName = name
	s.onboarded = true

	loadJSON(ctx, s, storage.KeyUserStats, &s.stats)
	loadJSON(ctx, s, storage.KeyTransactions, &s.transactions)
	loadJSON(ctx, s, storage.KeyTasks, &s.tasks)
	loadJSON(ctx, s, storage.KeyGoals, &s.goals)
	s.monthlyLimitCents = loadInt(ctx, s, storage.KeyMonthlyLimit)
	s.initialReserveCents = loadInt(ctx, s, storage.KeyInitialReserve)

	s.loaded = true
	s.logger.InfoContext(ctx, "State restored",
		"transactions", len(s.transactions),
		"tasks", len(s.tasks),
		"goals", len(s.goals),
		"xp", s.stats.XP)
	return nil
}

func loadJSON(ctx context.Context, s *Store, key string, dst any) {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if err != storage.ErrNotFound {
			s.logger.WarnContext(ctx, "Entry unreadable, using defaults", "key", key, "error", err)
		}
		return
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.logger.WarnContext(ctx, "Entry corrupt, using defaults", "key", key, "error", err)
	}
}

func loadInt(ctx context.Context, s *Store, key string) int64 {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if err != storage.ErrNotFound {
			s.logger.WarnContext(ctx, "Entry unreadable, using defaults", "key", key, "error", err)
		}
		return 0
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		s.logger.WarnContext(ctx, "Entry corrupt, using defaults", "key", key, "error", err)
		return 0
	}
	return v
}

// Onboard finishes first-run setup. Persisting only starts from here:
// saving earlier would overwrite existing data with pre-load defaults.
func (s *Store) Onboard(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.ErrEmptyTitle
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.userName = name
	if s.stats.Rank == "" {
		s.stats.Rank, s.stats.Level = core.RankForXP(s.stats.XP)
	}
	s.onboarded = true
	s.persist(ctx,
		storage.KeyUserName,
		storage.KeyUserStats,
		storage.KeyTransactions,
		storage.KeyTasks,
		storage.KeyGoals,
		storage.KeyMonthlyLimit,
		storage.KeyInitialReserve)
	return nil
}

func (s *Store) Onboarded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onboarded
}

func (s *Store) UserName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userName
}

// AdjustBalance creates a transaction whose type is derived from the sign
// of amountCents and accumulates the signed amount into the running
// balance. The new transaction is prepended: collections are newest-first.
func (s *Store) AdjustBalance(ctx context.Context, amountCents int64, description, category string) (core.Transaction, error) {
	if strings.TrimSpace(description) == "" {
		return core.Transaction{}, core.ErrEmptyDescription
	}

	txType := core.Revenue
	abs := amountCents
	if amountCents < 0 {
		txType = core.Expense
		abs = -amountCents
	}

	s.mu.Lock()

	tx := core.Transaction{
		ID:          newID(),
		Type:        txType,
		AmountCents: abs,
		Category:    strings.TrimSpace(category),
		Date:        core.DateOf(s.now()),
		Description: strings.TrimSpace(description),
	}

	s.transactions = append([]core.Transaction{tx}, s.transactions...)
	s.stats.BalanceCents += amountCents

	s.persist(ctx, storage.KeyTransactions, storage.KeyUserStats)
	s.mu.Unlock()

	s.notify(ctx, Event{
		Kind:        EventTransactionAdded,
		OccurredAt:  s.now(),
		Transaction: &tx,
	})
	return tx, nil
}

// AddManualTransaction validates user-entered fields and delegates to
// AdjustBalance with the sign implied by the type.
func (s *Store) AddManualTransaction(ctx context.Context, txType core.TransactionType, amount, description, category string) (core.Transaction, error) {
	if !txType.IsValid() {
		return core.Transaction{}, core.ErrInvalidType
	}
	cents, err := core.ParseDecimalToCents(amount)
	if err != nil {
		return core.Transaction{}, err
	}
	if txType == core.Expense {
		cents = -cents
	}
	return s.AdjustBalance(ctx, cents, description, category)
}

// DeleteTransaction removes exactly one entry matching id. Absent ids are
// a no-op.
func (s *Store) DeleteTransaction(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, tx := range s.transactions {
		if tx.ID == id {
			s.transactions = append(s.transactions[:i], s.transactions[i+1:]...)
			s.stats.BalanceCents -= tx.Signed()
			s.persist(ctx, storage.KeyTransactions, storage.KeyUserStats)
			return
		}
	}
	s.logger.InfoContext(ctx, "Delete skipped, transaction absent", "id", id)
}

// AddTask creates a task with default priority and XP value, inserted at
// the front.
func (s *Store) AddTask(ctx context.Context, title string) (core.Task, error) {
	task := core.Task{
		ID:       newID(),
		Title:    strings.TrimSpace(title),
		Priority: core.PriorityMedium,
		XPValue:  core.TaskXP,
	}
	if err := task.Validate(); err != nil {
		return core.Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = append([]core.Task{task}, s.tasks...)
	s.persist(ctx, storage.KeyTasks)
	return task, nil
}

// ToggleTaskComplete flips completed from false to true only. A completed
// task stays completed; repeat calls change nothing and award no XP.
func (s *Store) ToggleTaskComplete(ctx context.Context, id string) (core.Task, error) {
	s.mu.Lock()
	var task core.Task
	var found, completedNow bool
	for i := range s.tasks {
		if s.tasks[i].ID != id {
			continue
		}
		found = true
		if !s.tasks[i].Completed {
			s.tasks[i].Completed = true
			s.awardXP(s.tasks[i].XPValue)
			s.persist(ctx, storage.KeyTasks, storage.KeyUserStats)
			completedNow = true
		}
		task = s.tasks[i]
		break
	}
	s.mu.Unlock()

	if !found {
		return core.Task{}, core.ErrNotFound
	}
	if completedNow {
		s.notify(ctx, Event{
			Kind:       EventTaskCompleted,
			OccurredAt: s.now(),
			TaskID:     task.ID,
			Title:      task.Title,
			XPAwarded:  task.XPValue,
		})
	}
	return task, nil
}

func (s *Store) AddGoal(ctx context.Context, title string, targetCents int64) (core.Goal, error) {
	goal := core.Goal{
		ID:          newID(),
		Title:       strings.TrimSpace(title),
		TargetCents: targetCents,
		Unit:        "R$",
	}
	if err := goal.Validate(); err != nil {
		return core.Goal{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.goals = append([]core.Goal{goal}, s.goals...)
	s.persist(ctx, storage.KeyGoals)
	return goal, nil
}

// UpdateGoal adds deltaCents to the goal's progress. Completion latches
// true once current reaches the target; the XP bonus fires exactly once,
// at that transition.
func (s *Store) UpdateGoal(ctx context.Context, id string, deltaCents int64) (core.Goal, error) {
	s.mu.Lock()
	var goal core.Goal
	var found, justCompleted bool
	for i := range s.goals {
		if s.goals[i].ID != id {
			continue
		}
		found = true
		s.goals[i].CurrentCents += deltaCents
		justCompleted = !s.goals[i].Completed && s.goals[i].CurrentCents >= s.goals[i].TargetCents
		if justCompleted {
			s.goals[i].Completed = true
			s.awardXP(core.GoalXP)
		}
		keys := []string{storage.KeyGoals}
		if justCompleted {
			keys = append(keys, storage.KeyUserStats)
		}
		s.persist(ctx, keys...)
		goal = s.goals[i]
		break
	}
	s.mu.Unlock()

	if !found {
		return core.Goal{}, core.ErrNotFound
	}
	if justCompleted {
		s.notify(ctx, Event{
			Kind:       EventGoalCompleted,
			OccurredAt: s.now(),
			GoalID:     goal.ID,
			Title:      goal.Title,
			XPAwarded:  core.GoalXP,
		})
	}
	return goal, nil
}

// SetInitialReserveFromTotal solves the reserve so that the viewed month's
// equity equals newTotalCents: reserve = newTotal − viewed month balance.
// The formula deliberately depends on the viewed month, not all history;
// editing equity while viewing a past month shifts the reserve against
// that month's balance only. Pinned by a regression test.
func (s *Store) SetInitialReserveFromTotal(ctx context.Context, newTotalCents int64, view core.MonthYear) {
	s.mu.Lock()
	defer s.mu.Unlock()

	monthBalance := core.Summarize(s.transactions, view).BalanceCents
	s.initialReserveCents = newTotalCents - monthBalance
	s.persist(ctx, storage.KeyInitialReserve)
}

func (s *Store) SetMonthlyLimit(ctx context.Context, cents int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monthlyLimitCents = cents
	s.persist(ctx, storage.KeyMonthlyLimit)
}

// Summary aggregates the viewed month. Pure over current state.
func (s *Store) Summary(view core.MonthYear) core.MonthSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.Summarize(s.transactions, view)
}

// Equity returns initialReserve plus the viewed month's net balance.
func (s *Store) Equity(view core.MonthYear) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialReserveCents + core.Summarize(s.transactions, view).BalanceCents
}

func (s *Store) Stats() core.UserStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Store) Transactions() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, len(s.transactions))
	copy(out, s.transactions)
	return out
}

func (s *Store) Tasks() []core.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

func (s *Store) Goals() []core.Goal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Goal, len(s.goals))
	copy(out, s.goals)
	return out
}

func (s *Store) MonthlyLimit() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monthlyLimitCents
}

func (s *Store) InitialReserve() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialReserveCents
}

// awardXP adds XP and recomputes the decorative rank/level overlay.
// Callers hold the mutex.
func (s *Store) awardXP(n int) {
	s.stats.XP += n
	s.stats.Rank, s.stats.Level = core.RankForXP(s.stats.XP)
}

// persist mirrors the named entries to storage. Suppressed until the
// initial load finished and onboarding completed, so defaults never
// clobber persisted data. Write failures are logged, never fatal.
func (s *Store) persist(ctx context.Context, keys ...string) {
	if !s.loaded || !s.onboarded {
		return
	}
	for _, key := range keys {
		value, err := s.encode(key)
		if err != nil {
			s.logger.ErrorContext(ctx, "Encode entry failed", "key", key, "error", err)
			continue
		}
		if err := s.kv.Set(ctx, key, value); err != nil {
			s.logger.ErrorContext(ctx, "Persist entry failed", "key", key, "error", err)
		}
	}
}

func (s *Store) encode(key string) (string, error) {
	switch key {
	case storage.KeyUserName:
		return s.userName, nil
	case storage.KeyUserStats:
		return marshal(s.stats)
	case storage.KeyTransactions:
		return marshal(s.transactions)
	case storage.KeyTasks:
		return marshal(s.tasks)
	case storage.KeyGoals:
		return marshal(s.goals)
	case storage.KeyMonthlyLimit:
		return strconv.FormatInt(s.monthlyLimitCents, 10), nil
	case storage.KeyInitialReserve:
		return strconv.FormatInt(s.initialReserveCents, 10), nil
	}
	return "", fmt.Errorf("unknown entry key %q", key)
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// notify is always called after the store lock is released: a slow
// notifier must not stall mutations, and implementations may read the
// store from inside Notify.
func (s *Store) notify(ctx context.Context, ev Event) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, ev)
	}
}

func newID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("id_%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

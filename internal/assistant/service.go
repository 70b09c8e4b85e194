package assistant

import (
	"context"
	"errors"
	"math"
	"time"

	"grana/internal/core"
	applog "grana/internal/log"
	"grana/internal/store"
)

// ErrBusy is returned while a previous request is still outstanding.
// Requests occupy a single slot; queueing is deliberately not offered.
var ErrBusy = errors.New("assistant request already in flight")

// Caller abstracts the remote service for testing.
type Caller interface {
	Send(ctx context.Context, text string, audio []byte, audioMIME string) (*Reply, error)
}

// Service drives one assistant exchange end to end: remote call, then
// application of recognized tool calls to the store.
type Service struct {
	caller   Caller
	store    *store.Store
	logger   *applog.Logger
	now      func() time.Time
	inFlight chan struct{}
}

type ServiceOption func(*Service)

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func WithServiceLogger(l *applog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

func NewService(caller Caller, st *store.Store, opts ...ServiceOption) *Service {
	s := &Service{
		caller:   caller,
		store:    st,
		logger:   applog.New(applog.Config{Component: applog.ComponentAssistant}),
		now:      time.Now,
		inFlight: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Busy reports whether a request currently occupies the slot. Callers
// holding a one-shot payload should check before committing it.
func (s *Service) Busy() bool {
	return len(s.inFlight) > 0
}

// Result is the outcome of one exchange.
type Result struct {
	Text         string `json:"text"`
	AppliedCalls int    `json:"applied_calls"`
}

// HandleMessage sends the input to the remote service and applies any
// recognized tool calls. Remote failures degrade to the fixed fallback
// message; the chat never sees an error. Only invalid input and the
// single-slot guard surface as errors.
func (s *Service) HandleMessage(ctx context.Context, text string, audio []byte, audioMIME string) (Result, error) {
	select {
	case s.inFlight <- struct{}{}:
	default:
		return Result{}, ErrBusy
	}
	defer func() { <-s.inFlight }()

	if text == "" && len(audio) == 0 {
		return Result{}, ErrEmptyInput
	}

	reply, err := s.caller.Send(ctx, text, audio, audioMIME)
	if err != nil {
		s.logger.ErrorContext(ctx, "Assistant request failed", "error", err)
		return Result{Text: FallbackMessage}, nil
	}

	applied := s.applyCalls(ctx, reply.Calls)
	return Result{Text: reply.Text, AppliedCalls: applied}, nil
}

// applyCalls mutates the store for each recognized call. Unknown names
// and malformed arguments are skipped with a warning; one bad call never
// fails the whole response.
func (s *Service) applyCalls(ctx context.Context, calls []FunctionCall) int {
	applied := 0
	for _, call := range calls {
		switch call.Name {
		case CallAddTransaction:
			if err := s.applyAddTransaction(ctx, call.Args); err != nil {
				s.logger.WarnContext(ctx, "Skipping add_transaction call", "error", err)
				continue
			}
			applied++
		case CallUpdateBalance:
			if err := s.applyUpdateBalance(ctx, call.Args); err != nil {
				s.logger.WarnContext(ctx, "Skipping update_balance call", "error", err)
				continue
			}
			applied++
		default:
			s.logger.WarnContext(ctx, "Ignoring unrecognized call", "name", call.Name)
		}
	}
	return applied
}

func (s *Service) applyAddTransaction(ctx context.Context, args map[string]any) error {
	amount, ok := args["amount"].(float64)
	if !ok {
		return errors.New("missing or non-numeric amount")
	}
	txType, _ := args["type"].(string)
	description, _ := args["description"].(string)
	category, _ := args["category"].(string)

	cents, err := core.FloatToCents(amount)
	if err != nil {
		return err
	}
	switch core.TransactionType(txType) {
	case core.Expense:
		cents = -cents
	case core.Revenue:
	default:
		return core.ErrInvalidType
	}

	tx, err := s.store.AdjustBalance(ctx, cents, description, category)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Assistant created transaction",
		"id", tx.ID, "type", tx.Type, "amount_cents", tx.AmountCents, "category", tx.Category)
	return nil
}

func (s *Service) applyUpdateBalance(ctx context.Context, args map[string]any) error {
	amount, ok := args["amount"].(float64)
	if !ok {
		return errors.New("missing or non-numeric amount")
	}
	newTotal := int64(math.Round(amount * 100))
	s.store.SetInitialReserveFromTotal(ctx, newTotal, core.MonthYearOf(s.now()))
	s.logger.InfoContext(ctx, "Assistant updated balance", "new_total_cents", newTotal)
	return nil
}

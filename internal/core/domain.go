package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Revenue TransactionType = "REVENUE"
	Expense TransactionType = "EXPENSE"
)

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

const (
	// TaskXP is awarded when a task transitions to completed.
	TaskXP = 20
	// GoalXP is awarded once when a goal reaches its target.
	GoalXP = 100
)

type (
	TransactionType string

	Priority string

	Date struct {
		time.Time
	}

	Transaction struct {
		ID          string          `json:"id"`
		Type        TransactionType `json:"type"`
		AmountCents int64           `json:"amount_cents"`
		Category    string          `json:"category"`
		Date        Date            `json:"date"`
		Description string          `json:"description"`
	}

	Task struct {
		ID        string   `json:"id"`
		Title     string   `json:"title"`
		Priority  Priority `json:"priority"`
		Completed bool     `json:"completed"`
		XPValue   int      `json:"xp_value"`
	}

	Goal struct {
		ID           string `json:"id"`
		Title        string `json:"title"`
		CurrentCents int64  `json:"current_cents"`
		TargetCents  int64  `json:"target_cents"`
		Unit         string `json:"unit"`
		Completed    bool   `json:"completed"`
	}

	UserStats struct {
		XP                 int    `json:"xp"`
		Rank               string `json:"rank"`
		Level              int    `json:"level"`
		TotalRevenueCents  int64  `json:"total_revenue_cents"`
		TotalExpensesCents int64  `json:"total_expenses_cents"`
		BalanceCents       int64  `json:"balance_cents"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyTitle       = errors.New("empty title")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrInvalidTarget    = errors.New("invalid target amount")
	ErrNotFound         = errors.New("not found")
)

// NewDate creates a Date pinned to midnight UTC of the given calendar day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

func (d Date) Day() int   { return d.Time.Day() }
func (d Date) Month() int { return int(d.Time.Month()) }
func (d Date) Year() int  { return d.Time.Year() }

func (tt TransactionType) IsValid() bool {
	return tt == Revenue || tt == Expense
}

// Signed returns amount with the sign implied by the transaction type.
func (t Transaction) Signed() int64 {
	if t.Type == Expense {
		return -t.AmountCents
	}
	return t.AmountCents
}

func (t Transaction) Validate() error {
	if !t.Type.IsValid() {
		return ErrInvalidType
	}
	if t.AmountCents < 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if t.Date.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrEmptyTitle
	}
	switch t.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
	default:
		return errors.New("invalid priority")
	}
	return nil
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Title) == "" {
		return ErrEmptyTitle
	}
	if g.TargetCents <= 0 {
		return ErrInvalidTarget
	}
	return nil
}

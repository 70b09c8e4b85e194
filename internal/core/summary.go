package core

import "time"

// MonthYear identifies a calendar month in local calendar semantics.
// Month is 1-12.
type MonthYear struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// MonthYearOf returns the month containing t.
func MonthYearOf(t time.Time) MonthYear {
	return MonthYear{Year: t.Year(), Month: int(t.Month())}
}

// Next returns the following month, rolling the year forward from December.
func (m MonthYear) Next() MonthYear {
	if m.Month == 12 {
		return MonthYear{Year: m.Year + 1, Month: 1}
	}
	return MonthYear{Year: m.Year, Month: m.Month + 1}
}

// Prev returns the preceding month, rolling the year back from January.
func (m MonthYear) Prev() MonthYear {
	if m.Month == 1 {
		return MonthYear{Year: m.Year - 1, Month: 12}
	}
	return MonthYear{Year: m.Year, Month: m.Month - 1}
}

// Contains reports whether d falls inside this month. Only the stored
// calendar month and year are compared; no timezone normalization happens
// beyond what the date itself carries.
func (m MonthYear) Contains(d Date) bool {
	return d.Year() == m.Year && d.Month() == m.Month
}

// MonthSummary is the aggregate for one viewed month.
type MonthSummary struct {
	View          MonthYear     `json:"view"`
	Items         []Transaction `json:"items"`
	RevenueCents  int64         `json:"revenue_cents"`
	ExpensesCents int64         `json:"expenses_cents"`
	BalanceCents  int64         `json:"balance_cents"`
}

// Summarize filters txs down to the viewed month and sums revenue and
// expenses. It is pure: same inputs always produce the same summary, and
// the input slice is never mutated. Input order is preserved in Items.
func Summarize(txs []Transaction, view MonthYear) MonthSummary {
	s := MonthSummary{View: view}
	for _, tx := range txs {
		if !view.Contains(tx.Date) {
			continue
		}
		s.Items = append(s.Items, tx)
		switch tx.Type {
		case Revenue:
			s.RevenueCents += tx.AmountCents
		case Expense:
			s.ExpensesCents += tx.AmountCents
		}
	}
	s.BalanceCents = s.RevenueCents - s.ExpensesCents
	return s
}

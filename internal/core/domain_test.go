package core

import "testing"

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		ID:          "t1",
		Type:        Expense,
		AmountCents: 500,
		Category:    "Alimentação",
		Date:        NewDate(2025, 3, 14),
		Description: "almoço",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		{Type: "TRANSFER", AmountCents: 1, Date: NewDate(2025, 3, 1), Description: "x"},
		{Type: Revenue, AmountCents: -1, Date: NewDate(2025, 3, 1), Description: "x"},
		{Type: Revenue, AmountCents: 1, Date: NewDate(2025, 3, 1), Description: "   "},
		{Type: Revenue, AmountCents: 1, Description: "x"}, // zero date
	}
	for i, tx := range bads {
		if err := tx.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestTransactionSigned(t *testing.T) {
	rev := Transaction{Type: Revenue, AmountCents: 1000}
	exp := Transaction{Type: Expense, AmountCents: 300}
	if rev.Signed() != 1000 {
		t.Fatalf("revenue signed = %d, want 1000", rev.Signed())
	}
	if exp.Signed() != -300 {
		t.Fatalf("expense signed = %d, want -300", exp.Signed())
	}
}

func TestTaskValidate(t *testing.T) {
	if err := (Task{Title: "pagar contas", Priority: PriorityMedium, XPValue: TaskXP}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Task{Title: "  ", Priority: PriorityMedium}).Validate(); err == nil {
		t.Fatalf("expected error for blank title")
	}
	if err := (Task{Title: "ok", Priority: "URGENT"}).Validate(); err == nil {
		t.Fatalf("expected error for unknown priority")
	}
}

func TestGoalValidate(t *testing.T) {
	if err := (Goal{Title: "reserva", TargetCents: 100000, Unit: "R$"}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Goal{Title: "reserva", TargetCents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero target")
	}
}

func TestRankForXP(t *testing.T) {
	cases := []struct {
		xp    int
		rank  string
		level int
	}{
		{0, "Iniciante", 1},
		{99, "Iniciante", 1},
		{100, "Aprendiz", 2},
		{340, "Explorador", 4},
		{2500, "Lenda", 26},
		{-10, "Iniciante", 1},
	}
	for i, tc := range cases {
		rank, level := RankForXP(tc.xp)
		if rank != tc.rank || level != tc.level {
			t.Fatalf("case %d: got (%s, %d), want (%s, %d)", i, rank, level, tc.rank, tc.level)
		}
	}
}

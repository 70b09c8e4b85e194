package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"grana/internal/assistant"
	"grana/internal/core"
	"grana/internal/recorder"
	"grana/internal/storage"
	"grana/internal/store"
)

type fakeCaller struct {
	reply     *assistant.Reply
	err       error
	lastAudio []byte
	lastMIME  string
}

func (f *fakeCaller) Send(_ context.Context, _ string, audio []byte, audioMIME string) (*assistant.Reply, error) {
	f.lastAudio = audio
	f.lastMIME = audioMIME
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func newTestServer(t *testing.T, caller assistant.Caller) (*Server, *store.Store) {
	t.Helper()
	ctx := context.Background()

	st := store.New(storage.NewMemoryKV())
	if err := st.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := st.Onboard(ctx, "Ana"); err != nil {
		t.Fatalf("onboard: %v", err)
	}

	if caller == nil {
		caller = &fakeCaller{reply: &assistant.Reply{Text: "ok"}}
	}
	svc := assistant.NewService(caller, st)
	srv := NewServer(":0", st, svc, recorder.New(), assistant.DefaultCategories)
	t.Cleanup(func() { srv.rateLimiter.stop() })
	return srv, st
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := doJSON(t, srv, http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestOnboardValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodPost, "/api/onboard", map[string]string{"name": "  "})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("blank name status=%d", rr.Code)
	}

	rr = doJSON(t, srv, http.MethodPost, "/api/onboard", map[string]string{"name": "Bruno"})
	if rr.Code != http.StatusOK {
		t.Fatalf("onboard status=%d body=%s", rr.Code, rr.Body.String())
	}
	var resp struct {
		UserName string `json:"user_name"`
	}
	decode(t, rr, &resp)
	if resp.UserName != "Bruno" {
		t.Fatalf("user_name=%q", resp.UserName)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	srv, st := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]string{
		"type":        "EXPENSE",
		"amount":      "25,50",
		"description": "mercado",
		"category":    "Alimentação",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	var created struct {
		Transaction   core.Transaction `json:"transaction"`
		CategoryKnown bool             `json:"category_known"`
	}
	decode(t, rr, &created)
	tx := created.Transaction
	if tx.AmountCents != 2550 || tx.Type != core.Expense {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	if !created.CategoryKnown {
		t.Fatalf("Alimentação should be a known category")
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/transactions", nil)
	var list struct {
		Transactions []core.Transaction `json:"transactions"`
	}
	decode(t, rr, &list)
	if len(list.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(list.Transactions))
	}

	rr = doJSON(t, srv, http.MethodDelete, "/api/transactions/"+tx.ID, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if len(st.Transactions()) != 0 {
		t.Fatalf("transaction not deleted")
	}
}

func TestTransactionValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	cases := []struct {
		name string
		body map[string]string
	}{
		{"bad amount", map[string]string{"type": "EXPENSE", "amount": "abc", "description": "x", "category": "Outros"}},
		{"empty description", map[string]string{"type": "EXPENSE", "amount": "10,00", "description": "  ", "category": "Outros"}},
		{"bad type", map[string]string{"type": "LOAN", "amount": "10,00", "description": "x", "category": "Outros"}},
	}
	for _, tc := range cases {
		rr := doJSON(t, srv, http.MethodPost, "/api/transactions", tc.body)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: status=%d body=%s", tc.name, rr.Code, rr.Body.String())
		}
	}
}

func TestOffListCategoryIsAnnotatedNotRejected(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]string{
		"type": "EXPENSE", "amount": "10,00", "description": "ração", "category": "Pets",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("off-list category must be accepted, status=%d", rr.Code)
	}
	var created struct {
		CategoryKnown bool `json:"category_known"`
	}
	decode(t, rr, &created)
	if created.CategoryKnown {
		t.Fatalf("Pets should not be a known category")
	}
}

func TestTaskCompletionAwardsXP(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodPost, "/api/tasks", map[string]string{"title": "pagar aluguel"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create task status=%d", rr.Code)
	}
	var task core.Task
	decode(t, rr, &task)

	rr = doJSON(t, srv, http.MethodPost, "/api/tasks/"+task.ID+"/complete", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("complete status=%d body=%s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Task  core.Task      `json:"task"`
		Stats core.UserStats `json:"stats"`
	}
	decode(t, rr, &resp)
	if !resp.Task.Completed || resp.Stats.XP != core.TaskXP {
		t.Fatalf("completion not reflected: %+v", resp)
	}

	rr = doJSON(t, srv, http.MethodPost, "/api/tasks/desconhecida/complete", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown task status=%d", rr.Code)
	}
}

func TestGoalProgressToCompletion(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodPost, "/api/goals", map[string]any{
		"title": "reserva de emergência", "target_cents": 10000,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create goal status=%d body=%s", rr.Code, rr.Body.String())
	}
	var goal core.Goal
	decode(t, rr, &goal)

	rr = doJSON(t, srv, http.MethodPost, "/api/goals/"+goal.ID+"/progress", map[string]any{"delta_cents": 10000})
	if rr.Code != http.StatusOK {
		t.Fatalf("progress status=%d", rr.Code)
	}
	var resp struct {
		Goal  core.Goal      `json:"goal"`
		Stats core.UserStats `json:"stats"`
	}
	decode(t, rr, &resp)
	if !resp.Goal.Completed || resp.Stats.XP != core.GoalXP {
		t.Fatalf("goal completion not reflected: %+v", resp)
	}
}

func TestSetEquityAndSummary(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]string{
		"type": "REVENUE", "amount": "1000,00", "description": "salário", "category": "Salário",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d", rr.Code)
	}

	rr = doJSON(t, srv, http.MethodPut, "/api/equity", map[string]any{"total_cents": 150000})
	if rr.Code != http.StatusOK {
		t.Fatalf("equity status=%d", rr.Code)
	}
	var eq struct {
		InitialReserveCents int64 `json:"initial_reserve_cents"`
		EquityCents         int64 `json:"equity_cents"`
	}
	decode(t, rr, &eq)
	if eq.InitialReserveCents != 50000 || eq.EquityCents != 150000 {
		t.Fatalf("equity math off: %+v", eq)
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/summary", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("summary status=%d", rr.Code)
	}
	var sum struct {
		UserName string            `json:"user_name"`
		Summary  core.MonthSummary `json:"summary"`
	}
	decode(t, rr, &sum)
	if sum.UserName != "Ana" || sum.Summary.RevenueCents != 100000 {
		t.Fatalf("summary off: %+v", sum)
	}
}

func TestSetMonthlyLimit(t *testing.T) {
	srv, st := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodPut, "/api/limit", map[string]any{"limit_cents": -1})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("negative limit status=%d", rr.Code)
	}

	rr = doJSON(t, srv, http.MethodPut, "/api/limit", map[string]any{"limit_cents": 250000})
	if rr.Code != http.StatusOK {
		t.Fatalf("limit status=%d", rr.Code)
	}
	if st.MonthlyLimit() != 250000 {
		t.Fatalf("limit=%d", st.MonthlyLimit())
	}
}

func TestAssistantMessageAppliesCalls(t *testing.T) {
	caller := &fakeCaller{reply: &assistant.Reply{
		Text: "Anotado!",
		Calls: []assistant.FunctionCall{{
			Name: assistant.CallAddTransaction,
			Args: map[string]any{
				"amount": 25.5, "type": "EXPENSE",
				"description": "mercado", "category": "Alimentação",
			},
		}},
	}}
	srv, st := newTestServer(t, caller)

	rr := doJSON(t, srv, http.MethodPost, "/api/assistant/message", map[string]string{"text": "gastei 25,50 no mercado"})
	if rr.Code != http.StatusOK {
		t.Fatalf("message status=%d body=%s", rr.Code, rr.Body.String())
	}
	var result assistant.Result
	decode(t, rr, &result)
	if result.AppliedCalls != 1 || result.Text != "Anotado!" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(st.Transactions()) != 1 || st.Transactions()[0].AmountCents != 2550 {
		t.Fatalf("call not applied: %+v", st.Transactions())
	}

	rr = doJSON(t, srv, http.MethodPost, "/api/assistant/message", map[string]string{"text": ""})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty text status=%d", rr.Code)
	}
}

func TestRecordingLifecycle(t *testing.T) {
	caller := &fakeCaller{reply: &assistant.Reply{Text: "Entendi seu áudio"}}
	srv, _ := newTestServer(t, caller)

	rr := doJSON(t, srv, http.MethodPost, "/api/assistant/recordings", map[string]string{"mime_type": "audio/ogg"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("start status=%d body=%s", rr.Code, rr.Body.String())
	}
	var started struct {
		ID string `json:"id"`
	}
	decode(t, rr, &started)

	// A second session while one is active is refused.
	rr = doJSON(t, srv, http.MethodPost, "/api/assistant/recordings", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("concurrent start status=%d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/assistant/recordings/"+started.ID+"/chunks",
		strings.NewReader("chunk-um"))
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("chunk status=%d", rr.Code)
	}

	rr = doJSON(t, srv, http.MethodPost, "/api/assistant/recordings/"+started.ID+"/stop", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("stop status=%d body=%s", rr.Code, rr.Body.String())
	}
	if string(caller.lastAudio) != "chunk-um" || caller.lastMIME != "audio/ogg" {
		t.Fatalf("audio not forwarded: %q %q", caller.lastAudio, caller.lastMIME)
	}

	rr = doJSON(t, srv, http.MethodPost, "/api/assistant/recordings/"+started.ID+"/stop", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("double stop status=%d", rr.Code)
	}
}

func TestSecurityHeadersAndRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodGet, "/api/summary", nil)
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("missing security header, got %q", got)
	}

	// Mutations beyond the per-minute budget get 429.
	limited := false
	for i := 0; i < 70; i++ {
		rr := doJSON(t, srv, http.MethodPost, "/api/tasks", map[string]string{"title": "tarefa"})
		if rr.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatalf("rate limiter never engaged")
	}
}

func TestSummaryAndEquityHonorRequestedMonth(t *testing.T) {
	ctx := context.Background()
	st := store.New(storage.NewMemoryKV(), store.WithClock(func() time.Time {
		return time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)
	}))
	if err := st.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := st.Onboard(ctx, "Ana"); err != nil {
		t.Fatalf("onboard: %v", err)
	}
	svc := assistant.NewService(&fakeCaller{reply: &assistant.Reply{Text: "ok"}}, st)
	srv := NewServer(":0", st, svc, recorder.New(), assistant.DefaultCategories)
	t.Cleanup(func() { srv.rateLimiter.stop() })

	rr := doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]string{
		"type": "REVENUE", "amount": "1000,00", "description": "salário", "category": "Salário",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d", rr.Code)
	}

	var sum struct {
		Summary core.MonthSummary `json:"summary"`
	}
	rr = doJSON(t, srv, http.MethodGet, "/api/summary?year=2025&month=3", nil)
	decode(t, rr, &sum)
	if sum.Summary.View.Month != 3 || sum.Summary.RevenueCents != 100000 {
		t.Fatalf("march summary off: %+v", sum.Summary)
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/summary?year=2025&month=4", nil)
	decode(t, rr, &sum)
	if sum.Summary.View.Month != 4 || sum.Summary.RevenueCents != 0 {
		t.Fatalf("april summary off: %+v", sum.Summary)
	}

	// Reserve math follows the month named in the request body.
	var eq struct {
		InitialReserveCents int64 `json:"initial_reserve_cents"`
	}
	rr = doJSON(t, srv, http.MethodPut, "/api/equity", map[string]any{
		"total_cents": 150000, "year": 2025, "month": 3,
	})
	decode(t, rr, &eq)
	if eq.InitialReserveCents != 50000 {
		t.Fatalf("march reserve = %d, want 50000", eq.InitialReserveCents)
	}

	rr = doJSON(t, srv, http.MethodPut, "/api/equity", map[string]any{
		"total_cents": 150000, "year": 2025, "month": 4,
	})
	decode(t, rr, &eq)
	if eq.InitialReserveCents != 150000 {
		t.Fatalf("april reserve = %d, want 150000", eq.InitialReserveCents)
	}
}

// gateCaller holds the assistant slot open until released.
type gateCaller struct {
	entered   chan struct{}
	release   chan struct{}
	lastAudio []byte
}

func (g *gateCaller) Send(_ context.Context, _ string, audio []byte, _ string) (*assistant.Reply, error) {
	if len(audio) > 0 {
		g.lastAudio = audio
	}
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return &assistant.Reply{Text: "ok"}, nil
}

func TestRecordingStopKeepsSessionWhileAssistantBusy(t *testing.T) {
	caller := &gateCaller{entered: make(chan struct{}, 1), release: make(chan struct{})}
	srv, _ := newTestServer(t, caller)

	rr := doJSON(t, srv, http.MethodPost, "/api/assistant/recordings", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("start status=%d", rr.Code)
	}
	var started struct {
		ID string `json:"id"`
	}
	decode(t, rr, &started)

	req := httptest.NewRequest(http.MethodPost, "/api/assistant/recordings/"+started.ID+"/chunks",
		strings.NewReader("áudio"))
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("chunk status=%d", rec.Code)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest(http.MethodPost, "/api/assistant/message",
			strings.NewReader(`{"text":"oi"}`))
		srv.Handler.ServeHTTP(httptest.NewRecorder(), req)
	}()
	<-caller.entered

	// Busy slot: the stop is refused and the session must survive.
	rr = doJSON(t, srv, http.MethodPost, "/api/assistant/recordings/"+started.ID+"/stop", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("stop while busy status=%d, want 409", rr.Code)
	}

	close(caller.release)
	<-done

	rr = doJSON(t, srv, http.MethodPost, "/api/assistant/recordings/"+started.ID+"/stop", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("retried stop status=%d body=%s", rr.Code, rr.Body.String())
	}
	if string(caller.lastAudio) != "áudio" {
		t.Fatalf("audio lost: %q", caller.lastAudio)
	}
}

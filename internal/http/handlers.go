package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"grana/internal/assistant"
	"grana/internal/core"
	"grana/internal/recorder"
)

const maxBodyBytes = 1 << 20 // request bodies, including audio chunks

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "corpo da requisição inválido")
		return false
	}
	return true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound),
		errors.Is(err, recorder.ErrNoSession),
		errors.Is(err, recorder.ErrUnknownSession):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrEmptyTitle),
		errors.Is(err, core.ErrInvalidType),
		errors.Is(err, core.ErrInvalidTarget),
		errors.Is(err, assistant.ErrEmptyInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, assistant.ErrBusy),
		errors.Is(err, recorder.ErrSessionActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "Request failed",
			"url", r.URL.Path, "error", err)
		writeError(w, status, "erro interno")
		return
	}
	writeError(w, status, err.Error())
}

// viewFromQuery reads year and month query parameters, defaulting to the
// current month. An out-of-range month falls back to the current one.
func viewFromQuery(r *http.Request) core.MonthYear {
	view := core.MonthYearOf(time.Now())
	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil && y > 0 {
			view.Year = y
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m >= 1 && m <= 12 {
			view.Month = m
		}
	}
	return view
}

func (s *Server) handleOnboard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusUnprocessableEntity, "nome não pode ser vazio")
		return
	}
	if err := s.store.Onboard(r.Context(), strings.TrimSpace(req.Name)); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_name": s.store.UserName(),
		"stats":     s.store.Stats(),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	view := viewFromQuery(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"user_name":             s.store.UserName(),
		"onboarded":             s.store.Onboarded(),
		"stats":                 s.store.Stats(),
		"summary":               s.store.Summary(view),
		"monthly_limit_cents":   s.store.MonthlyLimit(),
		"initial_reserve_cents": s.store.InitialReserve(),
		"equity_cents":          s.store.Equity(view),
	})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type        string `json:"type"`
		Amount      string `json:"amount"`
		Description string `json:"description"`
		Category    string `json:"category"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	tx, err := s.store.AddManualTransaction(r.Context(),
		core.TransactionType(req.Type), req.Amount, req.Description, req.Category)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	_, known := s.categories[tx.Category]
	writeJSON(w, http.StatusCreated, map[string]any{
		"transaction":    tx,
		"category_known": known,
	})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": s.store.Transactions(),
	})
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	s.store.DeleteTransaction(r.Context(), r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	task, err := s.store.AddTask(r.Context(), req.Title)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tasks": s.store.Tasks()})
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.ToggleTaskComplete(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task":  task,
		"stats": s.store.Stats(),
	})
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		TargetCents int64  `json:"target_cents"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	goal, err := s.store.AddGoal(r.Context(), req.Title, req.TargetCents)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, goal)
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"goals": s.store.Goals()})
}

func (s *Server) handleGoalProgress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeltaCents int64 `json:"delta_cents"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	goal, err := s.store.UpdateGoal(r.Context(), r.PathValue("id"), req.DeltaCents)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"goal":  goal,
		"stats": s.store.Stats(),
	})
}

func (s *Server) handleSetEquity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TotalCents int64 `json:"total_cents"`
		Year       int   `json:"year"`
		Month      int   `json:"month"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	view := core.MonthYearOf(time.Now())
	if req.Year > 0 && req.Month >= 1 && req.Month <= 12 {
		view = core.MonthYear{Year: req.Year, Month: req.Month}
	}
	s.store.SetInitialReserveFromTotal(r.Context(), req.TotalCents, view)
	writeJSON(w, http.StatusOK, map[string]any{
		"initial_reserve_cents": s.store.InitialReserve(),
		"equity_cents":          s.store.Equity(view),
	})
}

func (s *Server) handleSetLimit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LimitCents int64 `json:"limit_cents"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.LimitCents < 0 {
		writeError(w, http.StatusUnprocessableEntity, "limite não pode ser negativo")
		return
	}
	s.store.SetMonthlyLimit(r.Context(), req.LimitCents)
	writeJSON(w, http.StatusOK, map[string]any{
		"monthly_limit_cents": s.store.MonthlyLimit(),
	})
}

func (s *Server) handleAssistantMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.assistant.HandleMessage(r.Context(), req.Text, nil, "")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MIMEType string `json:"mime_type"`
	}
	// An empty body means default MIME type.
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}
	id, err := s.recorder.Start(req.MIMEType)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleRecordingChunk(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	chunk, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "falha ao ler o áudio")
		return
	}
	if err := s.recorder.Append(r.PathValue("id"), chunk); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRecordingStop closes the session and hands its audio to the
// assistant as a voice message. Stop consumes the payload, so the session
// is left intact while the assistant slot is taken; the client retries.
func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if s.assistant.Busy() {
		writeError(w, http.StatusConflict, assistant.ErrBusy.Error())
		return
	}
	payload, mime, err := s.recorder.Stop(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.assistant.HandleMessage(r.Context(), "", payload, mime)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

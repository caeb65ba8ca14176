// Package handler serves the local console: a JSON API over the template
// and session stores, for a browser front end or scripts on the same host.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pavelanni/qtadmin/internal/api"
	"github.com/pavelanni/qtadmin/internal/display"
	appI18n "github.com/pavelanni/qtadmin/internal/i18n"
	"github.com/pavelanni/qtadmin/internal/llm"
	"github.com/pavelanni/qtadmin/internal/model"
	"github.com/pavelanni/qtadmin/internal/session"
	"github.com/pavelanni/qtadmin/internal/state"
	"github.com/pavelanni/qtadmin/internal/validate"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// JobAPI is the generation part of the API client.
type JobAPI interface {
	CreateJob(ctx context.Context, req model.JobRequest) (model.GenerationJob, error)
	GetJob(ctx context.Context, id int64) (model.GenerationJob, error)
	ListQuestions(ctx context.Context, f model.QuestionFilter) (model.QuestionPage, error)
	GetQuestion(ctx context.Context, id int64) (model.GeneratedQuestion, error)
}

// Drafter proposes template scripts. A nil Drafter disables the endpoint.
type Drafter interface {
	DraftScripts(ctx context.Context, d model.TemplateDraft) (*llm.Draft, error)
}

// Config holds console settings.
type Config struct {
	// PasswordHash is a bcrypt hash. Empty disables the guard.
	PasswordHash []byte
	// Lang is the default language for labels and messages.
	Lang string
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	templates *state.Templates
	session   *session.Store
	jobs      JobAPI
	drafter   Drafter
	config    Config
}

// New creates a new Handler. drafter may be nil.
func New(t *state.Templates, s *session.Store, jobs JobAPI, drafter Drafter, cfg Config) *Handler {
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	return &Handler{templates: t, session: s, jobs: jobs, drafter: drafter, config: cfg}
}

// Router returns the console router with logging, recovery and localization.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(h.config.Lang))
	r.Route("/api", h.Routes)
	return r
}

// Routes registers the API routes on r.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.requirePassword)

	r.Get("/templates", h.handleListTemplates)
	r.Post("/templates", h.handleCreateTemplate)
	r.Post("/templates/lint", h.handleLint)
	r.Post("/templates/draft", h.handleDraft)
	r.Get("/templates/{id}", h.handleGetTemplate)
	r.Patch("/templates/{id}", h.handleUpdateTemplate)
	r.Delete("/templates/{id}", h.handleDeleteTemplate)
	r.Post("/templates/{id}/preview", h.handlePreview)

	r.Post("/filters/clear", h.handleClearFilters)
	r.Post("/filters/more", h.handleLoadMore)

	r.Get("/session", h.handleSession)
	r.Post("/session/login", h.handleLogin)
	r.Post("/session/register", h.handleRegister)
	r.Post("/session/logout", h.handleLogout)
	r.Put("/session/child", h.handleSelectChild)

	r.Post("/jobs", h.handleCreateJob)
	r.Get("/jobs/{id}", h.handleGetJob)
	r.Get("/questions", h.handleListQuestions)
	r.Get("/questions/{id}", h.handleGetQuestion)
}

// templateView is a template decorated for display.
type templateView struct {
	model.Template
	StatusBadge     display.Badge `json:"status_badge"`
	DifficultyLabel string        `json:"difficulty_label"`
	DifficultyColor string        `json:"difficulty_color"`
	TypeLabel       string        `json:"type_label"`
	TypeIcon        string        `json:"type_icon"`
	FormatPreview   string        `json:"format_preview"`
}

func decorate(ctx context.Context, t model.Template) templateView {
	badge := display.StatusBadge(t.Status)
	badge.Label = appI18n.Label(ctx, "Status", string(t.Status), badge.Label)
	return templateView{
		Template:        t,
		StatusBadge:     badge,
		DifficultyLabel: appI18n.Label(ctx, "Difficulty", string(t.Difficulty), string(t.Difficulty)),
		DifficultyColor: display.DifficultyColor(t.Difficulty),
		TypeLabel:       appI18n.Label(ctx, "Type", string(t.Type), display.TypeLabel(t.Type)),
		TypeIcon:        display.TypeIcon(t.Type),
		FormatPreview:   display.Truncate(t.Format, display.DefaultTruncate),
	}
}

type listView struct {
	Items   []templateView `json:"items"`
	Total   int            `json:"total"`
	Filter  model.Filter   `json:"filter"`
	Loading bool           `json:"loading"`
	Error   string         `json:"error,omitempty"`
	Summary string         `json:"summary"`
}

func (h *Handler) listing(ctx context.Context, res model.Result[[]model.Template]) listView {
	snap := h.templates.Snapshot()
	items := make([]templateView, 0, len(res.Data))
	for _, t := range res.Data {
		items = append(items, decorate(ctx, t))
	}
	summary := appI18n.T(ctx, "NoTemplates")
	if len(items) > 0 {
		summary = appI18n.Tp(ctx, "TemplatesShown", len(items), map[string]any{"Total": snap.Total})
	}
	return listView{
		Items:   items,
		Total:   snap.Total,
		Filter:  snap.Filter,
		Loading: snap.Loading,
		Error:   snap.Error,
		Summary: summary,
	}
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	patch, ok, err := filterPatch(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "BadRequest"), nil)
		return
	}
	if ok {
		h.templates.SetFilters(patch)
	}
	h.writeListing(w, r)
}

func (h *Handler) writeListing(w http.ResponseWriter, r *http.Request) {
	res := h.templates.List(r.Context())
	if !res.Success {
		writeError(w, http.StatusBadGateway, res.Error, nil)
		return
	}
	writeData(w, http.StatusOK, h.listing(r.Context(), res))
}

// filterPatch reads filter fields from the query string. ok is false when
// none were given.
func filterPatch(r *http.Request) (model.FilterPatch, bool, error) {
	q := r.URL.Query()
	var p model.FilterPatch
	ok := false
	for key, dst := range map[string]**string{
		"module":     &p.Module,
		"category":   &p.Category,
		"difficulty": &p.Difficulty,
		"status":     &p.Status,
	} {
		if q.Has(key) {
			v := q.Get(key)
			*dst = &v
			ok = true
		}
	}
	if q.Has("limit") {
		n, err := strconv.Atoi(q.Get("limit"))
		if err != nil || n <= 0 {
			return p, false, errors.New("invalid limit")
		}
		p.Limit = &n
		ok = true
	}
	return p, ok, nil
}

func (h *Handler) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var draft model.TemplateDraft
	if !decodeBody(w, r, &draft) {
		return
	}
	res := h.templates.Create(r.Context(), draft)
	if !res.Success {
		writeFailure(w, res.Error, res.FieldErrors)
		return
	}
	slog.Info("template created", "id", res.Data.ID)
	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Data:    decorate(r.Context(), res.Data),
		Message: appI18n.Td(r.Context(), "TemplateCreated", map[string]any{"ID": res.Data.ID}),
	})
}

func (h *Handler) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res := h.templates.Get(r.Context(), id)
	if !res.Success {
		writeFailure(w, res.Error, nil)
		return
	}
	writeData(w, http.StatusOK, decorate(r.Context(), res.Data))
}

func (h *Handler) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var patch model.TemplatePatch
	if !decodeBody(w, r, &patch) {
		return
	}
	res := h.templates.Update(r.Context(), id, patch)
	if !res.Success {
		writeFailure(w, res.Error, res.FieldErrors)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    decorate(r.Context(), res.Data),
		Message: appI18n.Td(r.Context(), "TemplateUpdated", map[string]any{"ID": id}),
	})
}

func (h *Handler) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res := h.templates.Delete(r.Context(), id)
	if !res.Success {
		writeFailure(w, res.Error, nil)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    map[string]int64{"id": id},
		Message: appI18n.Td(r.Context(), "TemplateDeleted", map[string]any{"ID": id}),
	})
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Count int `json:"count"`
	}
	if r.ContentLength != 0 && !decodeBody(w, r, &body) {
		return
	}
	if body.Count != 0 && (body.Count < model.MinPreviewCount || body.Count > model.MaxPreviewCount) {
		writeError(w, http.StatusBadRequest, api.ErrPreviewCount.Error(), nil)
		return
	}
	res := h.templates.Preview(r.Context(), id, body.Count)
	if !res.Success {
		writeFailure(w, res.Error, nil)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"samples": res.Data})
}

type lintView struct {
	Valid       bool                            `json:"valid"`
	FieldErrors map[string]string               `json:"field_errors,omitempty"`
	Issues      map[string][]validate.LintIssue `json:"issues,omitempty"`
}

func (h *Handler) handleLint(w http.ResponseWriter, r *http.Request) {
	var draft model.TemplateDraft
	if !decodeBody(w, r, &draft) {
		return
	}
	draft = validate.SanitizeTemplate(draft)
	errs := validate.TemplateForm(draft)
	issues := validate.LintTemplate(draft)
	writeData(w, http.StatusOK, lintView{
		Valid:       errs.Valid(),
		FieldErrors: errs,
		Issues:      issues,
	})
}

func (h *Handler) handleDraft(w http.ResponseWriter, r *http.Request) {
	if h.drafter == nil {
		writeError(w, http.StatusNotFound, "Drafting assistant is not configured", nil)
		return
	}
	var draft model.TemplateDraft
	if !decodeBody(w, r, &draft) {
		return
	}
	out, err := h.drafter.DraftScripts(r.Context(), validate.SanitizeTemplate(draft))
	if err != nil {
		slog.Error("drafting failed", "error", err)
		writeError(w, http.StatusBadGateway, display.ErrorMessage(err), nil)
		return
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) handleClearFilters(w http.ResponseWriter, r *http.Request) {
	h.templates.ClearFilters()
	h.writeListing(w, r)
}

func (h *Handler) handleLoadMore(w http.ResponseWriter, r *http.Request) {
	h.templates.LoadMore()
	h.writeListing(w, r)
}

// envelope mirrors the backend's response shape.
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Message string     `json:"message,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string, fields map[string]string) {
	writeJSON(w, status, envelope{Error: &errorBody{Message: msg, Fields: fields}})
}

// writeFailure reports a failed store action. Field errors are the caller's
// fault; anything else came from the backend.
func writeFailure(w http.ResponseWriter, msg string, fields map[string]string) {
	if len(fields) > 0 {
		writeError(w, http.StatusUnprocessableEntity, msg, fields)
		return
	}
	writeError(w, http.StatusBadGateway, msg, nil)
}

// writeAPIError reports an error returned by the API client, keeping the
// backend's client-error status.
func writeAPIError(w http.ResponseWriter, err error) {
	status := api.StatusOf(err)
	if status < 400 || status >= 500 {
		status = http.StatusBadGateway
	}
	writeError(w, status, display.ErrorMessage(err), nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		slog.Warn("bad request body", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "BadRequest"), nil)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "BadRequest"), nil)
		return 0, false
	}
	return id, true
}

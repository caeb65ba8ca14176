// Package apitest runs an in-memory stand-in for the question template
// backend on an httptest.Server. Tests use it to drive the API client and the
// stores end to end, inject failures and hold responses.
package apitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/qtadmin/internal/model"
)

// Route keys accepted by Fail and Hold.
const (
	RouteCreateTemplate = "POST /question-templates"
	RouteListTemplates  = "GET /question-templates"
	RouteGetTemplate    = "GET /question-templates/{id}"
	RouteUpdateTemplate = "PATCH /question-templates/{id}"
	RouteDeleteTemplate = "DELETE /question-templates/{id}"
	RoutePreview        = "POST /question-templates/{id}/preview"
	RouteCreateJob      = "POST /question-generation-jobs"
	RouteGetJob         = "GET /question-generation-jobs/{id}"
	RouteListQuestions  = "GET /generated-questions"
	RouteGetQuestion    = "GET /generated-questions/{id}"
	RouteLogin          = "POST /auth/login"
	RouteRegister       = "POST /auth/register"
	RouteGoogle         = "POST /auth/google"
	RouteMe             = "GET /users/me"
)

// Request is a captured request.
type Request struct {
	Route  string
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

type failure struct {
	status  int
	message string
}

type user struct {
	id       string
	email    string
	password string
	profile  string // raw JSON served by /users/me
}

// Backend is the fake server. All methods are safe for concurrent use.
type Backend struct {
	Server *httptest.Server

	mu        sync.Mutex
	nextID    int64
	templates map[int64]model.Template
	jobs      map[int64]model.GenerationJob
	questions []model.GeneratedQuestion
	users     map[string]*user // by email
	tokens    map[string]*user
	failures  map[string]failure
	holds     map[string]chan struct{}
	requests  []Request
}

// New starts a backend and closes it when the test ends.
func New(t *testing.T) *Backend {
	t.Helper()
	b := &Backend{
		nextID:    1,
		templates: make(map[int64]model.Template),
		jobs:      make(map[int64]model.GenerationJob),
		users:     make(map[string]*user),
		tokens:    make(map[string]*user),
		failures:  make(map[string]failure),
		holds:     make(map[string]chan struct{}),
	}
	b.Server = httptest.NewServer(b.routes())
	t.Cleanup(b.Server.Close)
	return b
}

// URL is the API base URL.
func (b *Backend) URL() string { return b.Server.URL }

// Fail makes every request to route answer with status and an error message
// until Recover is called.
func (b *Backend) Fail(route string, status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = failure{status: status, message: message}
}

// Recover clears an injected failure.
func (b *Backend) Recover(route string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, route)
}

// Hold delays the response to the next request on route until the returned
// func is called. The response reflects backend state at arrival time.
func (b *Backend) Hold(route string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.holds[route] = ch
	b.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Requests returns every request seen so far.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// Count returns how many requests hit route.
func (b *Backend) Count(route string) int {
	n := 0
	for _, r := range b.Requests() {
		if r.Route == route {
			n++
		}
	}
	return n
}

// AddTemplate stores t with the next ID and returns it.
func (b *Backend) AddTemplate(t model.Template) model.Template {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addTemplateLocked(t)
}

func (b *Backend) addTemplateLocked(t model.Template) model.Template {
	if t.ID == 0 {
		t.ID = b.nextID
	}
	if t.ID >= b.nextID {
		b.nextID = t.ID + 1
	}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Status == "" {
		t.Status = model.StatusDraft
	}
	b.templates[t.ID] = t
	return t
}

// Template returns the stored template with id.
func (b *Backend) Template(id int64) (model.Template, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.templates[id]
	return t, ok
}

// AddUser registers an account whose /users/me reply is profileJSON verbatim.
func (b *Backend) AddUser(id, email, password, profileJSON string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[email] = &user{id: id, email: email, password: password, profile: profileJSON}
}

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()
	b.handle(r, RouteCreateTemplate, b.createTemplate)
	b.handle(r, RouteListTemplates, b.listTemplates)
	b.handle(r, RouteGetTemplate, b.getTemplate)
	b.handle(r, RouteUpdateTemplate, b.updateTemplate)
	b.handle(r, RouteDeleteTemplate, b.deleteTemplate)
	b.handle(r, RoutePreview, b.preview)
	b.handle(r, RouteCreateJob, b.createJob)
	b.handle(r, RouteGetJob, b.getJob)
	b.handle(r, RouteListQuestions, b.listQuestions)
	b.handle(r, RouteGetQuestion, b.getQuestion)
	b.handle(r, RouteLogin, b.login)
	b.handle(r, RouteRegister, b.register)
	b.handle(r, RouteGoogle, b.google)
	b.handle(r, RouteMe, b.me)
	return r
}

func (b *Backend) handle(r chi.Router, route string, h func(w http.ResponseWriter, r *http.Request, body []byte)) {
	method, pattern, _ := strings.Cut(route, " ")
	r.Method(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body []byte
		if req.Body != nil {
			body, _ = io.ReadAll(req.Body)
		}

		b.mu.Lock()
		b.requests = append(b.requests, Request{
			Route:  route,
			Method: req.Method,
			Path:   req.URL.Path,
			Query:  req.URL.RawQuery,
			Header: req.Header.Clone(),
			Body:   body,
		})
		hold := b.holds[route]
		delete(b.holds, route)
		f, failing := b.failures[route]
		b.mu.Unlock()

		rec := httptest.NewRecorder()
		if failing {
			writeError(rec, f.status, f.message)
		} else {
			h(rec, req, body)
		}
		// A held response is computed now and delivered on release.
		if hold != nil {
			<-hold
		}
		for k, v := range rec.Header() {
			w.Header()[k] = v
		}
		w.WriteHeader(rec.Code)
		_, _ = w.Write(rec.Body.Bytes())
	}))
}

func (b *Backend) createTemplate(w http.ResponseWriter, r *http.Request, body []byte) {
	var d model.TemplateDraft
	if err := json.Unmarshal(body, &d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	b.mu.Lock()
	t := b.addTemplateLocked(model.Template{
		Module: d.Module, Category: d.Category, Topic: d.Topic, Subtopic: d.Subtopic,
		Format: d.Format, Difficulty: d.Difficulty, Type: d.Type, Status: d.Status,
		GradeLevel: d.GradeLevel, DynamicQuestion: d.DynamicQuestion, LogicalAnswer: d.LogicalAnswer,
	})
	b.mu.Unlock()
	writeData(w, http.StatusCreated, t)
}

func (b *Backend) listTemplates(w http.ResponseWriter, r *http.Request, _ []byte) {
	q := r.URL.Query()
	b.mu.Lock()
	var all []model.Template
	for _, t := range b.templates {
		if v := q.Get("module"); v != "" && t.Module != v {
			continue
		}
		if v := q.Get("category"); v != "" && t.Category != v {
			continue
		}
		if v := q.Get("difficulty"); v != "" && string(t.Difficulty) != v {
			continue
		}
		if v := q.Get("status"); v != "" && string(t.Status) != v {
			continue
		}
		all = append(all, t)
	}
	b.mu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	total := len(all)
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	if all == nil {
		all = []model.Template{}
	}
	writeData(w, http.StatusOK, model.TemplatePage{Items: all, Total: total})
}

func (b *Backend) templateFor(w http.ResponseWriter, r *http.Request) (model.Template, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid template id")
		return model.Template{}, false
	}
	t, ok := b.Template(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Template not found")
		return model.Template{}, false
	}
	return t, true
}

func (b *Backend) getTemplate(w http.ResponseWriter, r *http.Request, _ []byte) {
	if t, ok := b.templateFor(w, r); ok {
		writeData(w, http.StatusOK, t)
	}
}

func (b *Backend) updateTemplate(w http.ResponseWriter, r *http.Request, body []byte) {
	t, ok := b.templateFor(w, r)
	if !ok {
		return
	}
	// Decode the patch straight onto the stored record.
	if err := json.Unmarshal(body, &t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	t.UpdatedAt = t.UpdatedAt.Add(time.Minute)
	b.mu.Lock()
	b.templates[t.ID] = t
	b.mu.Unlock()
	writeData(w, http.StatusOK, t)
}

func (b *Backend) deleteTemplate(w http.ResponseWriter, r *http.Request, _ []byte) {
	t, ok := b.templateFor(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	delete(b.templates, t.ID)
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) preview(w http.ResponseWriter, r *http.Request, body []byte) {
	t, ok := b.templateFor(w, r)
	if !ok {
		return
	}
	var req struct {
		Count int `json:"count"`
	}
	_ = json.Unmarshal(body, &req)
	samples := make([]model.PreviewSample, 0, req.Count)
	for i := 1; i <= req.Count; i++ {
		samples = append(samples, model.PreviewSample{
			Question:  fmt.Sprintf("<p>%s #%d</p>", t.Format, i),
			Answer:    float64(i * 2),
			Variables: map[string]any{"a": float64(i), "b": float64(i)},
		})
	}
	writeData(w, http.StatusOK, map[string]any{"samples": samples})
}

func (b *Backend) createJob(w http.ResponseWriter, r *http.Request, body []byte) {
	var req model.JobRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if _, ok := b.Template(req.TemplateID); !ok {
		writeError(w, http.StatusNotFound, "Template not found")
		return
	}
	b.mu.Lock()
	job := model.GenerationJob{ID: b.nextID, TemplateID: req.TemplateID, Count: req.Count, Status: model.JobPending}
	b.nextID++
	b.jobs[job.ID] = job
	b.mu.Unlock()
	writeData(w, http.StatusAccepted, job)
}

// getJob advances the job one status step per poll: pending, running, completed.
func (b *Backend) getJob(w http.ResponseWriter, r *http.Request, _ []byte) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	b.mu.Lock()
	defer b.mu.Unlock()
	job, ok := b.jobs[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	switch job.Status {
	case model.JobPending:
		job.Status = model.JobRunning
	case model.JobRunning:
		job.Status = model.JobCompleted
		for i := 0; i < job.Count; i++ {
			b.questions = append(b.questions, model.GeneratedQuestion{
				ID:         b.nextID,
				TemplateID: job.TemplateID,
				JobID:      job.ID,
				Question:   fmt.Sprintf("question %d", i+1),
				Answer:     float64(i),
			})
			b.nextID++
		}
	}
	b.jobs[id] = job
	writeData(w, http.StatusOK, job)
}

func (b *Backend) listQuestions(w http.ResponseWriter, r *http.Request, _ []byte) {
	q := r.URL.Query()
	tid, _ := strconv.ParseInt(q.Get("template_id"), 10, 64)
	jid, _ := strconv.ParseInt(q.Get("job_id"), 10, 64)
	b.mu.Lock()
	items := []model.GeneratedQuestion{}
	for _, gq := range b.questions {
		if tid != 0 && gq.TemplateID != tid {
			continue
		}
		if jid != 0 && gq.JobID != jid {
			continue
		}
		items = append(items, gq)
	}
	b.mu.Unlock()
	writeData(w, http.StatusOK, model.QuestionPage{Items: items, Total: len(items)})
}

func (b *Backend) getQuestion(w http.ResponseWriter, r *http.Request, _ []byte) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, gq := range b.questions {
		if gq.ID == id {
			writeData(w, http.StatusOK, gq)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Question not found")
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request, body []byte) {
	var creds model.Credentials
	_ = json.Unmarshal(body, &creds)
	b.mu.Lock()
	u, ok := b.users[creds.Email]
	if !ok || u.password != creds.Password {
		b.mu.Unlock()
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	token := "token-" + u.id
	b.tokens[token] = u
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, model.Token{AccessToken: token, TokenType: "bearer"})
}

func (b *Backend) register(w http.ResponseWriter, r *http.Request, body []byte) {
	var reg model.Registration
	_ = json.Unmarshal(body, &reg)
	b.mu.Lock()
	if _, exists := b.users[reg.Email]; exists {
		b.mu.Unlock()
		writeError(w, http.StatusConflict, "Email already registered")
		return
	}
	id := strconv.FormatInt(b.nextID, 10)
	b.nextID++
	// user_id and user_type mimic the older backend field names.
	profile, _ := json.Marshal(map[string]any{
		"user_id":   id,
		"email":     reg.Email,
		"name":      reg.Name,
		"user_type": reg.Role,
		"phone":     reg.Phone,
	})
	b.users[reg.Email] = &user{id: id, email: reg.Email, password: reg.Password, profile: string(profile)}
	b.mu.Unlock()
	writeData(w, http.StatusCreated, json.RawMessage(profile))
}

func (b *Backend) google(w http.ResponseWriter, r *http.Request, body []byte) {
	var ident model.Identity
	_ = json.Unmarshal(body, &ident)
	if ident.UID == "" || ident.Email == "" {
		writeError(w, http.StatusBadRequest, "Invalid identity")
		return
	}
	b.mu.Lock()
	u, ok := b.users[ident.Email]
	if !ok {
		id := "g-" + ident.UID
		profile, _ := json.Marshal(map[string]any{"id": id, "email": ident.Email, "name": ident.Name, "role": "teacher"})
		u = &user{id: id, email: ident.Email, profile: string(profile)}
		b.users[ident.Email] = u
	}
	token := "token-" + u.id
	b.tokens[token] = u
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
		"user":    json.RawMessage(u.profile),
	})
}

func (b *Backend) me(w http.ResponseWriter, r *http.Request, _ []byte) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	b.mu.Lock()
	u, ok := b.tokens[token]
	b.mu.Unlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	writeData(w, http.StatusOK, json.RawMessage(u.profile))
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   map[string]string{"message": message},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

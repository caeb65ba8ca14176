package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pavelanni/qtadmin/internal/api"
	"github.com/pavelanni/qtadmin/internal/api/apitest"
	appI18n "github.com/pavelanni/qtadmin/internal/i18n"
	"github.com/pavelanni/qtadmin/internal/llm"
	"github.com/pavelanni/qtadmin/internal/model"
	"github.com/pavelanni/qtadmin/internal/session"
	"github.com/pavelanni/qtadmin/internal/state"
	"github.com/pavelanni/qtadmin/internal/store"
)

type fakeDrafter struct {
	draft *llm.Draft
	err   error
}

func (f fakeDrafter) DraftScripts(context.Context, model.TemplateDraft) (*llm.Draft, error) {
	return f.draft, f.err
}

type testEnv struct {
	backend *apitest.Backend
	router  http.Handler
	mem     *store.Memory
}

func newTestEnv(t *testing.T, drafter Drafter, cfg Config) *testEnv {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n init: %v", err)
	}
	b := apitest.New(t)
	mem := store.NewMemory()
	client := api.New(b.URL(), mem, store.KeyToken, 0)
	h := New(state.NewTemplates(client, 10), session.New(client, mem), client, drafter, cfg)
	return &testEnv{backend: b, router: h.Router(), mem: mem}
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *struct {
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, resp
}

func validDraft() model.TemplateDraft {
	return model.TemplateDraft{
		Module:          "Math",
		Category:        "Arithmetic",
		Topic:           "Addition",
		Subtopic:        "Single digit",
		Format:          "What is {a} + {b}?",
		Difficulty:      model.DifficultyEasy,
		Type:            model.TypeMCQ,
		DynamicQuestion: "a = randint(1, 9)\nb = randint(1, 9)",
		LogicalAnswer:   "answer = a + b",
	}
}

func TestListTemplatesDecorated(t *testing.T) {
	env := newTestEnv(t, nil, Config{})
	env.backend.AddTemplate(model.Template{Module: "Math", Status: model.StatusActive, Type: model.TypeMCQ, Difficulty: model.DifficultyHard, Format: strings.Repeat("x", 80)})
	env.backend.AddTemplate(model.Template{Module: "Science", Status: model.StatusDraft})

	code, resp := env.do(t, http.MethodGet, "/api/templates?module=Math", nil)
	if code != http.StatusOK || !resp.Success {
		t.Fatalf("status %d, resp %+v", code, resp)
	}
	var list listView
	if err := json.Unmarshal(resp.Data, &list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 1 || len(list.Items) != 1 {
		t.Fatalf("got %d items, total %d", len(list.Items), list.Total)
	}
	item := list.Items[0]
	if item.StatusBadge.Label != "Active" || item.TypeLabel != "Multiple Choice" || item.DifficultyColor != "#EF4444" {
		t.Errorf("decoration: %+v", item)
	}
	if len([]rune(item.FormatPreview)) != 53 || !strings.HasSuffix(item.FormatPreview, "...") {
		t.Errorf("format preview: %q", item.FormatPreview)
	}
	if list.Filter.Module != "Math" || list.Filter.Limit != 10 {
		t.Errorf("filter: %+v", list.Filter)
	}
	if list.Summary != "Showing 1 template of 1." {
		t.Errorf("summary: %q", list.Summary)
	}

	reqs := env.backend.Requests()
	if got := reqs[len(reqs)-1].Query; !strings.Contains(got, "module=Math") {
		t.Errorf("backend query: %q", got)
	}
}

func TestListTemplatesBadLimit(t *testing.T) {
	env := newTestEnv(t, nil, Config{})
	code, _ := env.do(t, http.MethodGet, "/api/templates?limit=abc", nil)
	if code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", code)
	}
}

func TestCreateTemplate(t *testing.T) {
	env := newTestEnv(t, nil, Config{})

	code, resp := env.do(t, http.MethodPost, "/api/templates", validDraft())
	if code != http.StatusCreated || !resp.Success {
		t.Fatalf("status %d, resp %+v", code, resp)
	}
	var created templateView
	if err := json.Unmarshal(resp.Data, &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == 0 || created.Module != "Math" {
		t.Errorf("created: %+v", created)
	}
	if resp.Message != "Template #"+jsonNumber(created.ID)+" created." {
		t.Errorf("message: %q", resp.Message)
	}
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestCreateTemplateInvalid(t *testing.T) {
	env := newTestEnv(t, nil, Config{})
	d := validDraft()
	d.Module = "  "

	code, resp := env.do(t, http.MethodPost, "/api/templates", d)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422", code)
	}
	if resp.Error == nil || resp.Error.Fields["module"] == "" {
		t.Errorf("expected module field error, got %+v", resp.Error)
	}
	if n := env.backend.Count(apitest.RouteCreateTemplate); n != 0 {
		t.Errorf("backend saw %d create requests", n)
	}
}

func TestTemplateLifecycle(t *testing.T) {
	env := newTestEnv(t, nil, Config{})
	tmpl := env.backend.AddTemplate(model.Template{Module: "Math", Format: "Q", Status: model.StatusDraft})
	path := "/api/templates/" + jsonNumber(tmpl.ID)

	if code, _ := env.do(t, http.MethodGet, path, nil); code != http.StatusOK {
		t.Fatalf("get: status %d", code)
	}

	code, resp := env.do(t, http.MethodPatch, path, map[string]string{"status": "active"})
	if code != http.StatusOK {
		t.Fatalf("update: status %d, %+v", code, resp.Error)
	}
	if got, _ := env.backend.Template(tmpl.ID); got.Status != model.StatusActive {
		t.Errorf("backend status: %q", got.Status)
	}

	code, resp = env.do(t, http.MethodPost, path+"/preview", map[string]int{"count": 2})
	if code != http.StatusOK {
		t.Fatalf("preview: status %d", code)
	}
	var preview struct {
		Samples []model.PreviewSample `json:"samples"`
	}
	if err := json.Unmarshal(resp.Data, &preview); err != nil || len(preview.Samples) != 2 {
		t.Errorf("preview samples: %+v, %v", preview, err)
	}

	if code, _ := env.do(t, http.MethodPost, path+"/preview", map[string]int{"count": 11}); code != http.StatusBadRequest {
		t.Errorf("preview count 11: status %d", code)
	}

	if code, _ := env.do(t, http.MethodDelete, path, nil); code != http.StatusOK {
		t.Fatalf("delete: status %d", code)
	}
	if _, ok := env.backend.Template(tmpl.ID); ok {
		t.Error("template still on backend")
	}
}

func TestBackendErrorPassedThrough(t *testing.T) {
	env := newTestEnv(t, nil, Config{})
	env.backend.Fail(apitest.RouteGetTemplate, http.StatusNotFound, "Template not found")

	code, resp := env.do(t, http.MethodGet, "/api/templates/5", nil)
	if code != http.StatusBadGateway {
		t.Errorf("status %d", code)
	}
	if resp.Error == nil || resp.Error.Message != "Template not found" {
		t.Errorf("error: %+v", resp.Error)
	}
}

func TestFilters(t *testing.T) {
	env := newTestEnv(t, nil, Config{})
	for i := 0; i < 15; i++ {
		env.backend.AddTemplate(model.Template{Module: "Math"})
	}

	_, resp := env.do(t, http.MethodPost, "/api/filters/more", nil)
	var list listView
	_ = json.Unmarshal(resp.Data, &list)
	if list.Filter.Offset != 10 || len(list.Items) != 5 {
		t.Errorf("after load more: offset %d, %d items", list.Filter.Offset, len(list.Items))
	}

	_, resp = env.do(t, http.MethodPost, "/api/filters/clear", nil)
	_ = json.Unmarshal(resp.Data, &list)
	if list.Filter != model.DefaultFilter(10) || len(list.Items) != 10 {
		t.Errorf("after clear: %+v, %d items", list.Filter, len(list.Items))
	}
}

func TestLint(t *testing.T) {
	env := newTestEnv(t, nil, Config{})
	d := validDraft()
	d.LogicalAnswer = "if a > b\n    answer = a"

	_, resp := env.do(t, http.MethodPost, "/api/templates/lint", d)
	var got lintView
	if err := json.Unmarshal(resp.Data, &got); err != nil {
		t.Fatal(err)
	}
	if !got.Valid {
		t.Errorf("form should be valid: %v", got.FieldErrors)
	}
	if len(got.Issues["logical_answer"]) != 1 {
		t.Errorf("issues: %+v", got.Issues)
	}
	if len(env.backend.Requests()) != 0 {
		t.Error("lint should not reach the backend")
	}
}

func TestDraft(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t, nil, Config{})
		if code, _ := env.do(t, http.MethodPost, "/api/templates/draft", validDraft()); code != http.StatusNotFound {
			t.Errorf("status %d, want 404", code)
		}
	})
	t.Run("ok", func(t *testing.T) {
		env := newTestEnv(t, fakeDrafter{draft: &llm.Draft{DynamicQuestion: "a = 1", LogicalAnswer: "answer = a"}}, Config{})
		code, resp := env.do(t, http.MethodPost, "/api/templates/draft", validDraft())
		if code != http.StatusOK {
			t.Fatalf("status %d", code)
		}
		var d llm.Draft
		_ = json.Unmarshal(resp.Data, &d)
		if d.LogicalAnswer != "answer = a" {
			t.Errorf("draft: %+v", d)
		}
	})
	t.Run("model error", func(t *testing.T) {
		env := newTestEnv(t, fakeDrafter{err: errors.New("rate limited")}, Config{})
		code, resp := env.do(t, http.MethodPost, "/api/templates/draft", validDraft())
		if code != http.StatusBadGateway || resp.Error.Message != "rate limited" {
			t.Errorf("status %d, error %+v", code, resp.Error)
		}
	})
}

func TestSessionEndpoints(t *testing.T) {
	env := newTestEnv(t, nil, Config{})
	env.backend.AddUser("p1", "parent@example.com", "secret", `{
		"id": "p1", "role": "parent", "email": "parent@example.com",
		"children": {"c1": {"name": "Amy"}, "c2": {"name": "Bo"}}
	}`)

	code, resp := env.do(t, http.MethodPost, "/api/session/login", map[string]string{"email": "parent@example.com", "password": "bad"})
	if code != http.StatusUnauthorized || resp.Error.Message != "Invalid email or password" {
		t.Fatalf("bad login: status %d, %+v", code, resp.Error)
	}

	code, resp = env.do(t, http.MethodPost, "/api/session/login", map[string]string{"email": "parent@example.com", "password": "secret"})
	if code != http.StatusOK {
		t.Fatalf("login: status %d, %+v", code, resp.Error)
	}
	if resp.Message != "Logged in as parent@example.com (parent)." {
		t.Errorf("message: %q", resp.Message)
	}

	code, resp = env.do(t, http.MethodPut, "/api/session/child", map[string]string{"id": "c2"})
	if code != http.StatusOK {
		t.Fatalf("select child: status %d", code)
	}
	var sv sessionView
	_ = json.Unmarshal(resp.Data, &sv)
	if sv.ActiveChild == nil || sv.ActiveChild.ID != "c2" || !sv.IsParent || sv.RoleLabel != "Parent" {
		t.Errorf("session view: %+v", sv)
	}

	if code, _ := env.do(t, http.MethodPut, "/api/session/child", map[string]string{"id": "zz"}); code != http.StatusNotFound {
		t.Errorf("unknown child: status %d", code)
	}

	env.do(t, http.MethodPost, "/api/session/logout", nil)
	_, resp = env.do(t, http.MethodGet, "/api/session", nil)
	_ = json.Unmarshal(resp.Data, &sv)
	if sv.Authenticated {
		t.Error("still authenticated after logout")
	}
	if code, _ := env.do(t, http.MethodPut, "/api/session/child", map[string]string{"id": "c1"}); code != http.StatusUnauthorized {
		t.Errorf("select child logged out: status %d", code)
	}
}

func TestLoginFailureStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		route  string
		status int
		want   int
	}{
		{"wrong password", "", 0, http.StatusUnauthorized},
		{"login service error", apitest.RouteLogin, http.StatusInternalServerError, http.StatusBadGateway},
		{"login service unavailable", apitest.RouteLogin, http.StatusServiceUnavailable, http.StatusBadGateway},
		{"profile service error", apitest.RouteMe, http.StatusInternalServerError, http.StatusBadGateway},
		{"rate limited", apitest.RouteLogin, http.StatusTooManyRequests, http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, Config{})
			env.backend.AddUser("p1", "parent@example.com", "secret", `{"id": "p1", "role": "parent"}`)
			password := "secret"
			if tt.route == "" {
				password = "bad"
			} else {
				env.backend.Fail(tt.route, tt.status, "upstream trouble")
			}
			code, resp := env.do(t, http.MethodPost, "/api/session/login", map[string]string{"email": "parent@example.com", "password": password})
			if code != tt.want {
				t.Errorf("status %d, want %d", code, tt.want)
			}
			if resp.Success || resp.Error == nil {
				t.Errorf("expected error envelope, got %+v", resp)
			}
		})
	}
}

func TestLoginStatusMapping(t *testing.T) {
	tests := []struct {
		upstream, want int
	}{
		{0, http.StatusUnauthorized},
		{http.StatusUnauthorized, http.StatusUnauthorized},
		{http.StatusForbidden, http.StatusUnauthorized},
		{http.StatusUnprocessableEntity, http.StatusUnprocessableEntity},
		{http.StatusBadGateway, http.StatusBadGateway},
		{http.StatusInternalServerError, http.StatusBadGateway},
	}
	for _, tt := range tests {
		if got := loginStatus(tt.upstream); got != tt.want {
			t.Errorf("loginStatus(%d) = %d, want %d", tt.upstream, got, tt.want)
		}
	}
}

func TestRegisterEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, Config{})
	code, resp := env.do(t, http.MethodPost, "/api/session/register", model.Registration{
		Email: "kid@example.com", Password: "pw123456", Role: model.RoleStudent, Name: "Kid",
	})
	if code != http.StatusCreated {
		t.Fatalf("status %d, %+v", code, resp.Error)
	}
	var reg session.Registered
	_ = json.Unmarshal(resp.Data, &reg)
	if reg.Profile == nil || len(reg.Profile.Children) != 1 {
		t.Errorf("registered: %+v", reg)
	}
}

func TestJobsEndpoints(t *testing.T) {
	env := newTestEnv(t, nil, Config{})
	tmpl := env.backend.AddTemplate(model.Template{Module: "Math"})

	code, resp := env.do(t, http.MethodPost, "/api/jobs", model.JobRequest{TemplateID: tmpl.ID, Count: 2})
	if code != http.StatusCreated {
		t.Fatalf("create job: status %d, %+v", code, resp.Error)
	}
	var job jobView
	_ = json.Unmarshal(resp.Data, &job)
	if job.Status != model.JobPending || job.StatusLabel != "Pending" {
		t.Errorf("job: %+v", job)
	}

	path := "/api/jobs/" + jsonNumber(job.ID)
	for i := 0; i < 2; i++ {
		_, resp = env.do(t, http.MethodGet, path, nil)
	}
	_ = json.Unmarshal(resp.Data, &job)
	if job.Status != model.JobCompleted {
		t.Fatalf("job status: %q", job.Status)
	}

	_, resp = env.do(t, http.MethodGet, "/api/questions?job_id="+jsonNumber(job.ID), nil)
	var page model.QuestionPage
	_ = json.Unmarshal(resp.Data, &page)
	if page.Total != 2 || resp.Message != "2 generated questions." {
		t.Errorf("questions: total %d, message %q", page.Total, resp.Message)
	}

	code, resp = env.do(t, http.MethodPost, "/api/jobs", model.JobRequest{TemplateID: 999, Count: 1})
	if code != http.StatusNotFound || resp.Error.Message != "Template not found" {
		t.Errorf("missing template: status %d, %+v", code, resp.Error)
	}
}

func TestPasswordGuard(t *testing.T) {
	hash, err := HashPassword("letmein")
	if err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, nil, Config{PasswordHash: hash})

	tests := []struct {
		name     string
		password string
		setAuth  bool
		want     int
	}{
		{"no credentials", "", false, http.StatusUnauthorized},
		{"wrong password", "nope", true, http.StatusUnauthorized},
		{"right password", "letmein", true, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
			if tt.setAuth {
				req.SetBasicAuth("admin", tt.password)
			}
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestLocalizedLabels(t *testing.T) {
	env := newTestEnv(t, nil, Config{})
	env.backend.AddTemplate(model.Template{Status: model.StatusDraft})

	req := httptest.NewRequest(http.MethodGet, "/api/templates", nil)
	req.Header.Set("Accept-Language", "ru")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	var resp response
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	var list listView
	_ = json.Unmarshal(resp.Data, &list)
	if len(list.Items) != 1 || list.Items[0].StatusBadge.Label != "Черновик" {
		t.Errorf("items: %+v", list.Items)
	}
}

package session

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/pavelanni/qtadmin/internal/api"
	"github.com/pavelanni/qtadmin/internal/api/apitest"
	"github.com/pavelanni/qtadmin/internal/model"
	"github.com/pavelanni/qtadmin/internal/store"
)

const parentProfile = `{
	"id": "p1", "email": "parent@example.com", "name": "Pat", "role": "parent",
	"phone_number": "555-0100",
	"children": {
		"c2": {"name": "Zed", "grade": "5"},
		"c1": {"name": "Amy", "grade": "3"}
	}
}`

func newTestSession(t *testing.T) (*Store, *apitest.Backend, *store.Memory) {
	t.Helper()
	b := apitest.New(t)
	mem := store.NewMemory()
	client := api.New(b.URL(), mem, store.KeyToken, 0)
	return New(client, mem), b, mem
}

func get(t *testing.T, mem *store.Memory, key string) string {
	t.Helper()
	v, err := mem.Get(key)
	if err != nil {
		t.Fatalf("Get(%q): %v", key, err)
	}
	return v
}

func TestRegisterStudentGetsSelfChild(t *testing.T) {
	s, _, mem := newTestSession(t)
	res := s.Register(context.Background(), model.Registration{
		Email:    "kid@example.com",
		Password: "pw123456",
		Role:     model.RoleStudent,
		Name:     "Kid",
		Phone:    "555-0199",
	})
	if !res.Success {
		t.Fatalf("Register failed: %s", res.Error)
	}
	p := res.Data.Profile
	if p == nil {
		t.Fatal("expected automatic login")
	}
	if !p.IsStudent() || p.IsTeacher {
		t.Errorf("role flags wrong: %+v", p)
	}
	if len(p.Children) != 1 {
		t.Fatalf("expected one child, got %d", len(p.Children))
	}
	c := p.Children[0]
	if c.ID != p.ID || c.Name != "Kid" {
		t.Errorf("self child: got %+v, want id %q name Kid", c, p.ID)
	}
	if p.Fields["phone"] != "555-0199" || p.Fields["phone_number"] != "555-0199" {
		t.Errorf("phone not duplicated: %v / %v", p.Fields["phone"], p.Fields["phone_number"])
	}
	if active, ok := s.ActiveChild(); !ok || active.ID != p.ID {
		t.Errorf("active child: got %+v, %v", active, ok)
	}
	if got := get(t, mem, store.SelectedChildKey(p.ID)); got != p.ID {
		t.Errorf("saved selection: got %q", got)
	}
}

func TestRegisterSucceedsWhenAutoLoginFails(t *testing.T) {
	s, b, mem := newTestSession(t)
	b.Fail(apitest.RouteLogin, http.StatusServiceUnavailable, "Login temporarily disabled")

	res := s.Register(context.Background(), model.Registration{
		Email: "new@example.com", Password: "pw123456", Role: model.RoleTeacher,
	})
	if !res.Success {
		t.Fatalf("Register failed: %s", res.Error)
	}
	if res.Data.Profile != nil {
		t.Errorf("expected no profile, got %+v", res.Data.Profile)
	}
	if res.Data.LoginError != "Login temporarily disabled" {
		t.Errorf("LoginError: got %q", res.Data.LoginError)
	}
	snap := s.Snapshot()
	if snap.Authenticated {
		t.Error("expected to stay logged out")
	}
	if snap.Error != "" {
		t.Errorf("successful registration left an error: %q", snap.Error)
	}
	if get(t, mem, store.KeyToken) != "" {
		t.Error("expected no stored credential")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	s, b, _ := newTestSession(t)
	b.AddUser("u1", "taken@example.com", "pw", `{"id":"u1","role":"teacher"}`)

	res := s.Register(context.Background(), model.Registration{
		Email: "taken@example.com", Password: "pw123456", Role: model.RoleTeacher,
	})
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error != "Email already registered" {
		t.Errorf("Error: got %q", res.Error)
	}
}

func TestLoginDefaultsToFirstChild(t *testing.T) {
	s, b, mem := newTestSession(t)
	b.AddUser("p1", "parent@example.com", "secret", parentProfile)

	res := s.Login(context.Background(), "parent@example.com", "secret")
	if !res.Success {
		t.Fatalf("Login failed: %s", res.Error)
	}
	p := res.Data
	if !p.IsParent() {
		t.Errorf("expected parent, got %q", p.Role)
	}
	if len(p.Children) != 2 || p.Children[0].ID != "c2" || p.Children[1].ID != "c1" {
		t.Fatalf("children order: got %+v", p.Children)
	}
	active, ok := s.ActiveChild()
	if !ok || active.ID != "c2" {
		t.Errorf("active child: got %+v", active)
	}
	if got := get(t, mem, store.SelectedChildKey("p1")); got != "c2" {
		t.Errorf("saved selection: got %q", got)
	}
	if get(t, mem, store.KeyToken) != "token-p1" {
		t.Error("credential not stored")
	}
	if get(t, mem, store.KeyProfile) == "" {
		t.Error("profile snapshot not stored")
	}
}

func TestLoginRestoresSavedChild(t *testing.T) {
	s, b, mem := newTestSession(t)
	b.AddUser("p1", "parent@example.com", "secret", parentProfile)
	_ = mem.Set(store.SelectedChildKey("p1"), "c1")

	if res := s.Login(context.Background(), "parent@example.com", "secret"); !res.Success {
		t.Fatalf("Login failed: %s", res.Error)
	}
	if active, _ := s.ActiveChild(); active.ID != "c1" {
		t.Errorf("active child: got %q, want c1", active.ID)
	}
}

func TestLoginIgnoresStaleSavedChild(t *testing.T) {
	s, b, mem := newTestSession(t)
	b.AddUser("p1", "parent@example.com", "secret", parentProfile)
	_ = mem.Set(store.SelectedChildKey("p1"), "gone")

	if res := s.Login(context.Background(), "parent@example.com", "secret"); !res.Success {
		t.Fatalf("Login failed: %s", res.Error)
	}
	if active, _ := s.ActiveChild(); active.ID != "c2" {
		t.Errorf("active child: got %q, want c2", active.ID)
	}
}

func TestLoginFailureStoresNothing(t *testing.T) {
	tests := []struct {
		name    string
		route   string
		status  int
		wantErr string
	}{
		{"bad password", "", 0, "Invalid email or password"},
		{"profile fetch fails", apitest.RouteMe, http.StatusInternalServerError, "Profile service down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, b, mem := newTestSession(t)
			b.AddUser("p1", "parent@example.com", "secret", parentProfile)
			password := "secret"
			if tt.route == "" {
				password = "wrong"
			} else {
				b.Fail(tt.route, tt.status, tt.wantErr)
			}

			res := s.Login(context.Background(), "parent@example.com", password)
			if res.Success {
				t.Fatal("expected failure")
			}
			if res.Error != tt.wantErr {
				t.Errorf("Error: got %q, want %q", res.Error, tt.wantErr)
			}
			if get(t, mem, store.KeyToken) != "" {
				t.Error("credential stored after failed login")
			}
			snap := s.Snapshot()
			if snap.Authenticated || snap.Error != tt.wantErr || snap.Loading {
				t.Errorf("snapshot: %+v", snap)
			}
		})
	}
}

func TestLoginFailureStatus(t *testing.T) {
	tests := []struct {
		name   string
		route  string
		status int
		want   int
	}{
		{"rejected credentials", "", 0, http.StatusUnauthorized},
		{"login service down", apitest.RouteLogin, http.StatusServiceUnavailable, http.StatusServiceUnavailable},
		{"profile fetch fails", apitest.RouteMe, http.StatusInternalServerError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, b, _ := newTestSession(t)
			b.AddUser("p1", "parent@example.com", "secret", parentProfile)
			password := "secret"
			if tt.route == "" {
				password = "wrong"
			} else {
				b.Fail(tt.route, tt.status, "")
			}
			res := s.Login(context.Background(), "parent@example.com", password)
			if res.Success || res.Status != tt.want {
				t.Errorf("got success=%v status=%d, want status %d", res.Success, res.Status, tt.want)
			}
		})
	}

	t.Run("backend unreachable", func(t *testing.T) {
		mem := store.NewMemory()
		s := New(api.New("http://127.0.0.1:1", mem, store.KeyToken, 0), mem)
		res := s.Login(context.Background(), "parent@example.com", "secret")
		if res.Success || res.Status != http.StatusBadGateway {
			t.Errorf("got success=%v status=%d, want 502", res.Success, res.Status)
		}
	})

	t.Run("unknown role is local", func(t *testing.T) {
		s, b, _ := newTestSession(t)
		b.AddUser("x1", "admin@example.com", "secret", `{"id":"x1","role":"admin"}`)
		res := s.Login(context.Background(), "admin@example.com", "secret")
		if res.Success || res.Status != 0 {
			t.Errorf("got success=%v status=%d, want 0", res.Success, res.Status)
		}
	})
}

func TestLoginUnknownRole(t *testing.T) {
	s, b, mem := newTestSession(t)
	b.AddUser("x1", "admin@example.com", "secret", `{"id":"x1","role":"admin"}`)

	res := s.Login(context.Background(), "admin@example.com", "secret")
	if res.Success {
		t.Fatal("expected failure for unknown role")
	}
	if s.Principal() != nil {
		t.Error("principal set for unknown role")
	}
	if get(t, mem, store.KeyToken) != "" {
		t.Error("credential stored for unknown role")
	}
}

func TestSeparateSelectionsPerPrincipal(t *testing.T) {
	s, b, mem := newTestSession(t)
	ctx := context.Background()
	b.AddUser("p1", "parent@example.com", "secret", parentProfile)
	b.AddUser("p2", "other@example.com", "secret", `{
		"user_id": "p2", "user_type": "parent",
		"children": [{"id": "k1", "name": "Kim"}, {"id": "k2", "name": "Lee"}]
	}`)

	if res := s.Login(ctx, "parent@example.com", "secret"); !res.Success {
		t.Fatal(res.Error)
	}
	if err := s.SelectChild("c1"); err != nil {
		t.Fatalf("SelectChild: %v", err)
	}
	s.Logout()

	if res := s.Login(ctx, "other@example.com", "secret"); !res.Success {
		t.Fatal(res.Error)
	}
	if err := s.SelectChild("k2"); err != nil {
		t.Fatalf("SelectChild: %v", err)
	}
	if err := s.SelectChild("c1"); !errors.Is(err, ErrUnknownChild) {
		t.Errorf("selecting another principal's child: got %v", err)
	}
	s.Logout()

	if got := get(t, mem, store.SelectedChildKey("p1")); got != "c1" {
		t.Errorf("p1 selection: got %q", got)
	}
	if got := get(t, mem, store.SelectedChildKey("p2")); got != "k2" {
		t.Errorf("p2 selection: got %q", got)
	}

	if res := s.Login(ctx, "parent@example.com", "secret"); !res.Success {
		t.Fatal(res.Error)
	}
	if active, _ := s.ActiveChild(); active.ID != "c1" {
		t.Errorf("p1 active child after relogin: got %q", active.ID)
	}
}

func TestRestore(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantAuth bool
	}{
		{"valid credential", 0, true},
		{"rejected credential", http.StatusUnauthorized, false},
		{"server error keeps cache", http.StatusInternalServerError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := apitest.New(t)
			mem := store.NewMemory()
			client := api.New(b.URL(), mem, store.KeyToken, 0)
			b.AddUser("p1", "parent@example.com", "secret", parentProfile)

			first := New(client, mem)
			if res := first.Login(context.Background(), "parent@example.com", "secret"); !res.Success {
				t.Fatal(res.Error)
			}
			if tt.status != 0 {
				b.Fail(apitest.RouteMe, tt.status, "nope")
			}

			second := New(client, mem)
			second.Restore(context.Background())
			snap := second.Snapshot()
			if snap.Authenticated != tt.wantAuth {
				t.Fatalf("Authenticated: got %v, want %v", snap.Authenticated, tt.wantAuth)
			}
			if tt.wantAuth {
				if snap.Profile.ID != "p1" || snap.ActiveChild == nil || snap.ActiveChild.ID != "c2" {
					t.Errorf("restored snapshot: %+v", snap)
				}
				return
			}
			if get(t, mem, store.KeyToken) != "" || get(t, mem, store.KeyProfile) != "" {
				t.Error("rejected session left in storage")
			}
		})
	}
}

func TestRestoreWithoutCredential(t *testing.T) {
	s, b, _ := newTestSession(t)
	res := s.Restore(context.Background())
	if !res.Success || res.Data != nil {
		t.Errorf("got %+v", res)
	}
	if b.Count(apitest.RouteMe) != 0 {
		t.Error("expected no profile fetch without a credential")
	}
}

func TestLoginWithProvider(t *testing.T) {
	s, _, mem := newTestSession(t)
	res := s.LoginWithProvider(context.Background(), StaticProvider{
		UID: "abc", Email: "teacher@example.com", Name: "Tess",
	})
	if !res.Success {
		t.Fatalf("LoginWithProvider failed: %s", res.Error)
	}
	if !res.Data.IsTeacher || res.Data.ID != "g-abc" {
		t.Errorf("profile: %+v", res.Data)
	}
	if len(res.Data.Children) != 0 {
		t.Errorf("teacher should have no children, got %+v", res.Data.Children)
	}
	if get(t, mem, store.KeyToken) != "token-g-abc" {
		t.Error("credential not stored")
	}
}

func TestLoginWithProviderFailureKeepsSession(t *testing.T) {
	s, b, mem := newTestSession(t)
	ctx := context.Background()
	b.AddUser("p1", "parent@example.com", "secret", parentProfile)
	if res := s.Login(ctx, "parent@example.com", "secret"); !res.Success {
		t.Fatal(res.Error)
	}

	if res := s.LoginWithProvider(ctx, StaticProvider{}); res.Success {
		t.Fatal("expected cancelled sign-in to fail")
	}

	b.Fail(apitest.RouteMe, http.StatusInternalServerError, "down")
	if res := s.LoginWithProvider(ctx, StaticProvider{UID: "abc", Email: "t@example.com"}); res.Success {
		t.Fatal("expected failure when the profile cannot be fetched")
	}

	if p := s.Principal(); p == nil || p.ID != "p1" {
		t.Errorf("previous session lost: %+v", p)
	}
	if get(t, mem, store.KeyToken) != "token-p1" {
		t.Errorf("credential: got %q, want token-p1", get(t, mem, store.KeyToken))
	}
}

func TestLogout(t *testing.T) {
	s, b, mem := newTestSession(t)
	b.AddUser("p1", "parent@example.com", "secret", parentProfile)
	if res := s.Login(context.Background(), "parent@example.com", "secret"); !res.Success {
		t.Fatal(res.Error)
	}
	s.Logout()

	if snap := s.Snapshot(); snap.Authenticated || snap.ActiveChild != nil {
		t.Errorf("snapshot after logout: %+v", snap)
	}
	if get(t, mem, store.KeyToken) != "" || get(t, mem, store.KeyProfile) != "" {
		t.Error("storage not cleared")
	}
	if err := s.SelectChild("c1"); err == nil {
		t.Error("expected SelectChild to fail when logged out")
	}
}

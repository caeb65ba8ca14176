// Package session keeps the authenticated principal for the lifetime of the
// process. The bearer credential, a profile snapshot and each principal's
// active child live in local storage so a restart picks up where it left off.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/pavelanni/qtadmin/internal/api"
	"github.com/pavelanni/qtadmin/internal/display"
	"github.com/pavelanni/qtadmin/internal/model"
	"github.com/pavelanni/qtadmin/internal/store"
)

var (
	// ErrUnknownChild is returned when selecting a child the principal does not have.
	ErrUnknownChild = errors.New("unknown child")
	// ErrNotLoggedIn is returned by actions that need a principal.
	ErrNotLoggedIn = errors.New("not logged in")

	// Shown to the user as is.
	errNoToken          = errors.New("Login failed")
	errProviderRejected = errors.New("Google sign-in failed")
)

// Storage is the local persistence port.
type Storage interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
}

// AuthAPI is the part of the API client the session store needs.
type AuthAPI interface {
	Login(ctx context.Context, creds model.Credentials) (model.Token, error)
	Register(ctx context.Context, reg model.Registration) (map[string]any, error)
	GoogleLogin(ctx context.Context, id model.Identity) (model.FederatedLogin, error)
	Me(ctx context.Context) (json.RawMessage, error)
}

// IdentityProvider obtains an identity assertion from an external provider.
type IdentityProvider interface {
	SignIn(ctx context.Context) (model.Identity, error)
}

// Registered is the outcome of a registration. Profile is nil when the
// account was created but the automatic login did not succeed.
type Registered struct {
	User       map[string]any `json:"user"`
	Profile    *model.Profile `json:"profile,omitempty"`
	LoginError string         `json:"login_error,omitempty"`
}

// Store holds the session. All methods are safe for concurrent use.
type Store struct {
	api     AuthAPI
	storage Storage

	mu          sync.Mutex
	profile     *model.Profile
	activeChild string
	inflight    int
	lastErr     string
}

// Snapshot is a copy of the observable session state.
type Snapshot struct {
	Authenticated bool           `json:"authenticated"`
	Profile       *model.Profile `json:"profile,omitempty"`
	IsTeacher     bool           `json:"is_teacher"`
	IsParent      bool           `json:"is_parent"`
	IsStudent     bool           `json:"is_student"`
	ActiveChild   *model.Child   `json:"active_child,omitempty"`
	Loading       bool           `json:"loading"`
	Error         string         `json:"error,omitempty"`
}

// New creates an empty session store. Call Restore to pick up a saved session.
func New(a AuthAPI, s Storage) *Store {
	return &Store{api: a, storage: s}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Authenticated: s.profile != nil,
		Loading:       s.inflight > 0,
		Error:         s.lastErr,
	}
	if s.profile != nil {
		p := *s.profile
		snap.Profile = &p
		snap.IsTeacher = p.IsTeacher
		snap.IsParent = p.IsParent()
		snap.IsStudent = p.IsStudent()
		if c, ok := p.Child(s.activeChild); ok {
			snap.ActiveChild = &c
		}
	}
	return snap
}

// Principal returns the current profile, or nil when logged out.
func (s *Store) Principal() *model.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return nil
	}
	p := *s.profile
	return &p
}

// ActiveChild returns the selected child, if the principal has any children.
func (s *Store) ActiveChild() (model.Child, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.Child(s.activeChild)
}

// SelectChild makes id the active child and remembers the choice for this principal.
func (s *Store) SelectChild(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return ErrNotLoggedIn
	}
	if _, ok := s.profile.Child(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChild, id)
	}
	s.activeChild = id
	if err := s.storage.Set(store.SelectedChildKey(s.profile.ID), id); err != nil {
		return fmt.Errorf("persist child selection: %w", err)
	}
	return nil
}

func (s *Store) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight++
	s.lastErr = ""
}

func (s *Store) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
}

func (s *Store) fail(v any) string {
	msg := display.ErrorMessage(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = msg
	return msg
}

// Restore loads the saved session and checks it against the backend. A
// rejected credential (401) ends the session; any other failure keeps the
// cached profile.
func (s *Store) Restore(ctx context.Context) model.Result[*model.Profile] {
	s.begin()
	defer s.end()

	token, err := s.storage.Get(store.KeyToken)
	if err != nil {
		return model.Fail[*model.Profile](s.fail(fmt.Errorf("read credential: %w", err)))
	}
	if token == "" {
		return model.OK[*model.Profile](nil)
	}

	cached := s.loadSnapshot()
	if cached != nil {
		s.commit(cached, false)
	}

	raw, err := s.api.Me(ctx)
	if err == nil {
		var p *model.Profile
		p, err = Normalize(raw)
		if err == nil {
			s.commit(p, true)
			return model.OK(s.Principal())
		}
	}

	if api.StatusOf(err) == http.StatusUnauthorized || errors.Is(err, ErrUnknownRole) {
		slog.Warn("saved session rejected, logging out", "error", err)
		s.Logout()
		return model.Fail[*model.Profile](s.fail(err))
	}
	slog.Warn("could not revalidate saved session", "error", err)
	if cached == nil {
		return model.Fail[*model.Profile](s.fail(err))
	}
	return model.OK(s.Principal())
}

// Login authenticates with email and password, then loads the full profile.
// Nothing is stored unless both steps succeed.
func (s *Store) Login(ctx context.Context, email, password string) model.Result[*model.Profile] {
	s.begin()
	defer s.end()

	p, err := s.login(ctx, email, password)
	if err != nil {
		return s.loginFailure(err)
	}
	slog.Info("logged in", "user_id", p.ID, "role", p.Role)
	return model.OK(p)
}

// login exchanges credentials for a token and establishes the session
// without recording a failure.
func (s *Store) login(ctx context.Context, email, password string) (*model.Profile, error) {
	tok, err := s.api.Login(ctx, model.Credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, errNoToken
	}
	return s.establish(ctx, tok.AccessToken)
}

// loginFailure records err and builds a failed result carrying the upstream
// status: 0 when the failure is local, 502 when the backend was unreachable.
func (s *Store) loginFailure(err error) model.Result[*model.Profile] {
	res := model.Fail[*model.Profile](s.fail(err))
	var re *api.RequestError
	if errors.As(err, &re) {
		res.Status = re.Status
		if res.Status == 0 {
			res.Status = http.StatusBadGateway
		}
	}
	return res
}

// LoginWithProvider signs in through an external identity provider and links
// the identity on the backend. A failure at any step leaves the session as it was.
func (s *Store) LoginWithProvider(ctx context.Context, idp IdentityProvider) model.Result[*model.Profile] {
	s.begin()
	defer s.end()

	ident, err := idp.SignIn(ctx)
	if err != nil {
		return s.loginFailure(err)
	}
	resp, err := s.api.GoogleLogin(ctx, ident)
	if err != nil {
		return s.loginFailure(err)
	}
	if !resp.Success || resp.Token == "" {
		return s.loginFailure(errProviderRejected)
	}
	p, err := s.establish(ctx, resp.Token)
	if err != nil {
		return s.loginFailure(err)
	}
	slog.Info("logged in with identity provider", "user_id", p.ID, "role", p.Role)
	return model.OK(p)
}

// Register creates an account and logs straight into it. If that login
// fails the registration still succeeds, without a session.
func (s *Store) Register(ctx context.Context, reg model.Registration) model.Result[Registered] {
	s.begin()
	defer s.end()

	user, err := s.api.Register(ctx, reg)
	if err != nil {
		return model.Fail[Registered](s.fail(err))
	}
	out := Registered{User: user}

	p, err := s.login(ctx, reg.Email, reg.Password)
	if err != nil {
		out.LoginError = display.ErrorMessage(err)
		slog.Warn("account created but automatic login failed", "email", reg.Email, "error", out.LoginError)
		return model.OK(out)
	}
	slog.Info("registered and logged in", "user_id", p.ID, "role", p.Role)
	out.Profile = p
	return model.OK(out)
}

// Logout forgets the credential, the profile snapshot and the in-memory
// session. Saved child selections are kept for the next login.
func (s *Store) Logout() {
	for _, key := range []string{store.KeyToken, store.KeyProfile} {
		if err := s.storage.Remove(key); err != nil {
			slog.Warn("failed to clear local storage", "key", key, "error", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = nil
	s.activeChild = ""
}

// establish stores token, fetches and normalizes the profile and commits it.
// On failure the previously stored credential is put back.
func (s *Store) establish(ctx context.Context, token string) (*model.Profile, error) {
	prev, err := s.storage.Get(store.KeyToken)
	if err != nil {
		return nil, fmt.Errorf("read credential: %w", err)
	}
	if err := s.storage.Set(store.KeyToken, token); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}

	raw, err := s.api.Me(ctx)
	var p *model.Profile
	if err == nil {
		p, err = Normalize(raw)
	}
	if err != nil {
		s.restoreToken(prev)
		return nil, err
	}
	s.commit(p, true)
	return s.Principal(), nil
}

func (s *Store) restoreToken(prev string) {
	var err error
	if prev == "" {
		err = s.storage.Remove(store.KeyToken)
	} else {
		err = s.storage.Set(store.KeyToken, prev)
	}
	if err != nil {
		slog.Warn("failed to restore previous credential", "error", err)
	}
}

// commit installs p as the principal, optionally saves the snapshot, and
// picks the active child.
func (s *Store) commit(p *model.Profile, persist bool) {
	if persist {
		if data, err := json.Marshal(p); err != nil {
			slog.Warn("failed to encode profile snapshot", "error", err)
		} else if err := s.storage.Set(store.KeyProfile, string(data)); err != nil {
			slog.Warn("failed to save profile snapshot", "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = p
	s.activeChild = s.pickChild(p)
}

// pickChild restores the saved selection when it is still one of p's
// children, otherwise selects and saves the first child.
func (s *Store) pickChild(p *model.Profile) string {
	if len(p.Children) == 0 {
		return ""
	}
	key := store.SelectedChildKey(p.ID)
	saved, err := s.storage.Get(key)
	if err != nil {
		slog.Warn("failed to read child selection", "error", err)
	}
	if _, ok := p.Child(saved); ok && saved != "" {
		return saved
	}
	id := p.Children[0].ID
	if err := s.storage.Set(key, id); err != nil {
		slog.Warn("failed to save child selection", "error", err)
	}
	return id
}

func (s *Store) loadSnapshot() *model.Profile {
	data, err := s.storage.Get(store.KeyProfile)
	if err != nil || data == "" {
		return nil
	}
	var p model.Profile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		slog.Warn("discarding unreadable profile snapshot", "error", err)
		return nil
	}
	return &p
}

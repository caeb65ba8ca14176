package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/qtadmin/internal/i18n"
	"github.com/pavelanni/qtadmin/internal/model"
	"github.com/pavelanni/qtadmin/internal/session"
)

const consoleRealm = `Basic realm="qtadmin"`

// HashPassword returns the bcrypt hash used by the console guard.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// requirePassword checks HTTP basic auth against the console password hash.
// The user name is ignored.
func (h *Handler) requirePassword(next http.Handler) http.Handler {
	if len(h.config.PasswordHash) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, password, ok := r.BasicAuth()
		if !ok || bcrypt.CompareHashAndPassword(h.config.PasswordHash, []byte(password)) != nil {
			if ok {
				slog.Warn("console password rejected", "remote", r.RemoteAddr)
			}
			w.Header().Set("WWW-Authenticate", consoleRealm)
			writeError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "Unauthorized"), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.sessionView(r))
}

type sessionView struct {
	session.Snapshot
	RoleLabel string `json:"role_label,omitempty"`
}

func (h *Handler) sessionView(r *http.Request) sessionView {
	snap := h.session.Snapshot()
	v := sessionView{Snapshot: snap}
	if snap.Profile != nil {
		v.RoleLabel = appI18n.Label(r.Context(), "Role", string(snap.Profile.Role), string(snap.Profile.Role))
	}
	return v
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// Identity, when set, signs in through the external provider instead.
	Identity *model.Identity `json:"identity,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var res model.Result[*model.Profile]
	if req.Identity != nil {
		res = h.session.LoginWithProvider(r.Context(), session.StaticProvider(*req.Identity))
	} else {
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "BadRequest"), nil)
			return
		}
		res = h.session.Login(r.Context(), req.Email, req.Password)
	}
	if !res.Success {
		writeError(w, loginStatus(res.Status), res.Error, nil)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    h.sessionView(r),
		Message: appI18n.Td(r.Context(), "LoggedInAs", map[string]any{"Email": res.Data.Email, "Role": res.Data.Role}),
	})
}

// loginStatus maps the upstream status of a failed login: rejected or
// unverifiable credentials are 401, other client errors pass through and
// upstream or network failures are 502.
func loginStatus(upstream int) int {
	switch {
	case upstream == 0, upstream == http.StatusUnauthorized, upstream == http.StatusForbidden:
		return http.StatusUnauthorized
	case upstream >= 400 && upstream < 500:
		return upstream
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg model.Registration
	if !decodeBody(w, r, &reg) {
		return
	}
	if reg.Email == "" || reg.Password == "" || reg.Role == "" {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "BadRequest"), nil)
		return
	}
	res := h.session.Register(r.Context(), reg)
	if !res.Success {
		writeError(w, http.StatusBadGateway, res.Error, nil)
		return
	}
	msg := appI18n.Td(r.Context(), "Registered", map[string]any{"Email": reg.Email})
	if res.Data.Profile == nil {
		msg = appI18n.Td(r.Context(), "RegisteredNoLogin", map[string]any{"Error": res.Data.LoginError})
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: res.Data, Message: msg})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.session.Logout()
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: appI18n.T(r.Context(), "LoggedOut")})
}

func (h *Handler) handleSelectChild(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	err := h.session.SelectChild(body.ID)
	switch {
	case errors.Is(err, session.ErrNotLoggedIn):
		writeError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "NotLoggedIn"), nil)
		return
	case errors.Is(err, session.ErrUnknownChild):
		writeError(w, http.StatusNotFound, appI18n.T(r.Context(), "NotFound"), nil)
		return
	case err != nil:
		slog.Error("select child", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	writeData(w, http.StatusOK, h.sessionView(r))
}

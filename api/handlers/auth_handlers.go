package handlers

import (
	"errors"
	"net/http"
	"strings"

	"civicwatch/config"
	"civicwatch/core/identity"
	"civicwatch/core/store"
	"civicwatch/core/utils"
)

const sessionCookieName = "civicwatch_session"

type AuthHandler struct {
	cfg      *config.AppConfig
	users    store.UsersStore
	resolver *identity.Resolver
	audits   store.AuditStore
	logger   *utils.Logger
}

func NewAuthHandler(cfg *config.AppConfig, users store.UsersStore, resolver *identity.Resolver, audits store.AuditStore, logger *utils.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, users: users, resolver: resolver, audits: audits, logger: logger}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var cred credentials
	if !decodeJSON(w, r, &cred) {
		return
	}
	cred.Username = strings.ToLower(strings.TrimSpace(cred.Username))
	if cred.Username == "" || cred.Password == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	sess, err := h.resolver.Login(r.Context(), cred.Username, cred.Password)
	if err != nil {
		if errors.Is(err, identity.ErrBadCredentials) {
			_ = h.audits.Log(r.Context(), cred.Username, "auth.login_failed", "", "")
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		if h.logger != nil {
			h.logger.Errorf("auth login %s: %v", cred.Username, err)
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	_ = h.audits.Log(r.Context(), sess.UserID, "auth.login_success", "", "")
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      sess.ID,
		"role":       sess.Role,
		"expires_at": sess.ExpiresAt,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.resolver.Logout(r.Context(), requestToken(r)); err != nil && h.logger != nil {
		h.logger.Errorf("auth logout: %v", err)
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	out := map[string]interface{}{
		"id":            p.ID,
		"role":          p.Role,
		"department_id": p.DepartmentID,
	}
	if user, err := h.users.Get(r.Context(), p.ID); err == nil && user != nil {
		out["username"] = user.Username
		out["full_name"] = user.FullName
	}
	writeJSON(w, http.StatusOK, out)
}

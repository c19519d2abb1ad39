package handler

import (
	"net/http"
	"net/url"

	"github.com/Rrens/kb-chat/internal/api/middleware"
	"github.com/Rrens/kb-chat/internal/api/response"
	"github.com/Rrens/kb-chat/internal/service"
	"github.com/rs/zerolog/log"
)

const stateCookieName = "kbchat_login_state"

// AuthHandler handles the browser login flow
type AuthHandler struct {
	authService  *service.AuthService
	secureCookie bool
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, secureCookie bool) *AuthHandler {
	return &AuthHandler{authService: authService, secureCookie: secureCookie}
}

// Login redirects to the identity provider
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	authURL, sealed, err := h.authService.LoginURL()
	if err != nil {
		log.Error().Err(err).Msg("failed to start login")
		response.InternalError(w, "failed to start login")
		return
	}

	h.setStateCookie(w, sealed, h.authService.StateTTL())
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Authorize completes the login and returns to the index page
func (h *AuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionID(r.Context())
	if !ok {
		response.InternalError(w, "missing session")
		return
	}

	sealed := ""
	if c, err := r.Cookie(stateCookieName); err == nil {
		sealed = c.Value
	}
	h.setStateCookie(w, "", -1)

	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		log.Warn().
			Str("error", providerErr).
			Str("description", q.Get("error_description")).
			Msg("identity provider rejected login")
		redirectWithFlash(w, r, "error", "Authorization failed.")
		return
	}

	login, err := h.authService.Callback(r.Context(), sessionID, q.Get("code"), q.Get("state"), sealed)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("login failed")
		redirectWithFlash(w, r, "error", "Token verification failed.")
		return
	}

	if !middleware.ReissueSessionID(r.Context(), w, login.SessionID) {
		log.Error().Msg("session cookie middleware not installed")
		response.InternalError(w, "missing session")
		return
	}
	redirectWithFlash(w, r, "success", "Welcome, "+login.Identity.DisplayName()+"!")
}

// Logout clears the session and redirects to the provider logout page
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionID(r.Context())
	if !ok {
		response.InternalError(w, "missing session")
		return
	}

	next, err := h.authService.Logout(r.Context(), sessionID)
	if err != nil {
		log.Error().Err(err).Msg("logout failed")
		response.InternalError(w, "logout failed")
		return
	}
	http.Redirect(w, r, next, http.StatusFound)
}

func (h *AuthHandler) setStateCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func redirectWithFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	q := url.Values{}
	q.Set(kind, message)
	http.Redirect(w, r, "/?"+q.Encode(), http.StatusFound)
}

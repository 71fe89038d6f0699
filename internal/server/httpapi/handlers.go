package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

type authResponse struct {
	AccessToken        string          `json:"accessToken"`
	AccessTokenExpires time.Time       `json:"accessTokenExpires"`
	User               models.UserView `json:"user"`
}

type refreshResponse struct {
	AccessToken        string    `json:"accessToken"`
	AccessTokenExpires time.Time `json:"accessTokenExpires"`
	UserEmail          string    `json:"userEmail"`
}

type sessionsResponse struct {
	Sessions         []models.Session `json:"sessions"`
	CurrentSessionID string           `json:"currentSessionId,omitempty"`
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Register(r.Context(), services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	}, r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.setRefresh(w, res.RefreshToken)
	writeJSON(w, http.StatusCreated, authResponse{
		AccessToken:        res.AccessToken,
		AccessTokenExpires: res.AccessTokenExpires,
		User:               res.User,
	})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password, r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.setRefresh(w, res.RefreshToken)
	writeJSON(w, http.StatusOK, authResponse{
		AccessToken:        res.AccessToken,
		AccessTokenExpires: res.AccessTokenExpires,
		User:               res.User,
	})
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	value := refreshCookieValue(r)
	if value == "" {
		writeError(w, common.ErrInvalidToken)
		return
	}

	res, err := h.auth.Refresh(r.Context(), value, r.UserAgent())
	if err != nil {
		if common.KindOf(err) != common.KindUnknown {
			h.cookies.clearRefresh(w)
		}
		writeError(w, err)
		return
	}

	h.cookies.setRefresh(w, res.RefreshToken)
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken:        res.AccessToken,
		AccessTokenExpires: res.AccessTokenExpires,
		UserEmail:          res.UserEmail,
	})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), refreshCookieValue(r)); err != nil {
		writeError(w, err)
		return
	}
	h.cookies.clearRefresh(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) logoutAll(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFrom(r.Context())
	if err := h.auth.LogoutAll(r.Context(), p.UserID); err != nil {
		writeError(w, err)
		return
	}
	h.cookies.clearRefresh(w)
	w.WriteHeader(http.StatusNoContent)
}

// forgotPassword answers 204 for every well-formed request so the response
// never tells whether the email is registered.
func (h *handlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.auth.SendResetPasswordLink(r.Context(), req.Email, clientIP(r)); err != nil {
		h.log.Error(r.Context(), "forgot password failed", logging.ErrorAttrs(err)...)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	h.cookies.clearRefresh(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listSessions(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFrom(r.Context())
	sessions, err := h.sessions.List(r.Context(), p.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionsResponse{
		Sessions:         sessions,
		CurrentSessionID: h.sessions.CurrentID(r.Context(), p.UserID, refreshCookieValue(r)),
	})
}

func (h *handlers) revokeSession(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFrom(r.Context())
	if err := h.sessions.Revoke(r.Context(), chi.URLParam(r, "id"), p.UserID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.PingContext(r.Context()); err != nil {
			h.log.Warn(r.Context(), "health check failed", logging.ErrorAttrs(err)...)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

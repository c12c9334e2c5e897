// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"

	"devblog/internal/middleware"
	"devblog/internal/models"
	"devblog/internal/session"
	"devblog/internal/store"
)

// totpIssuer names the site in authenticator apps.
const totpIssuer = "devblog"

// UserStore is the account storage used by Auth.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Create(ctx context.Context, email, password, displayName string) (*models.User, error)
	SetTOTPSecret(ctx context.Context, userID uuid.UUID, secret string) error
	EnableTOTP(ctx context.Context, userID uuid.UUID) error
	CheckPassword(user *models.User, password string) bool
}

// SessionStore creates and ends login sessions.
type SessionStore interface {
	Create(ctx context.Context, w http.ResponseWriter, data *session.Data) (string, error)
	Update(ctx context.Context, r *http.Request, data *session.Data) error
	Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

// Auth groups all authentication-related HTTP handlers.
type Auth struct {
	users    UserStore
	sessions SessionStore
}

// NewAuth creates a new Auth handler group.
func NewAuth(users UserStore, sessions SessionStore) *Auth {
	return &Auth{users: users, sessions: sessions}
}

// authResponse tells the client which step of the login flow comes next.
type authResponse struct {
	User *models.User `json:"user"`
	Next string       `json:"next"`
}

func nextStep(u *models.User) string {
	if u.Needs2FASetup() {
		return "2fa_setup"
	}
	return "2fa_verify"
}

func (a *Auth) startSession(w http.ResponseWriter, r *http.Request, u *models.User) bool {
	// TwoFADone starts false; the user must complete 2FA.
	_, err := a.sessions.Create(r.Context(), w, &session.Data{
		UserID:      u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
	})
	if err != nil {
		slog.Error("session create failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "an internal error occurred")
		return false
	}
	return true
}

// Signup registers an account and starts a session that still needs 2FA.
func (a *Auth) Signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if errs := validateSignup(req.Email, req.Password, req.DisplayName); len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	user, err := a.users.Create(r.Context(), req.Email, req.Password, req.DisplayName)
	if errors.Is(err, store.ErrEmailTaken) {
		writeError(w, http.StatusConflict, "email_taken", "an account with this email already exists")
		return
	}
	if err != nil {
		slog.Error("signup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "an internal error occurred")
		return
	}
	if !a.startSession(w, r, user) {
		return
	}
	slog.Info("user signed up", "email", user.Email)
	writeJSON(w, http.StatusCreated, authResponse{User: user, Next: nextStep(user)})
}

// Login checks credentials and starts a session that still needs 2FA.
func (a *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	user, err := a.users.FindByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Error("login lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "an internal error occurred")
		return
	}
	if user == nil || !a.users.CheckPassword(user, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}
	if !a.startSession(w, r, user) {
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: user, Next: nextStep(user)})
}

// sessionUser loads the account behind the request session.
func (a *Auth) sessionUser(w http.ResponseWriter, r *http.Request) (*session.Data, *models.User, bool) {
	sess := middleware.SessionFromCtx(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "sign in required")
		return nil, nil, false
	}
	user, err := a.users.FindByID(r.Context(), sess.UserID)
	if err != nil {
		slog.Error("user lookup for 2fa failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "an internal error occurred")
		return nil, nil, false
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "account no longer exists")
		return nil, nil, false
	}
	return sess, user, true
}

// TwoFASetup generates a TOTP secret and returns it with a QR code. Once 2FA
// is enabled the secret can no longer be replaced from a partial session.
func (a *Auth) TwoFASetup(w http.ResponseWriter, r *http.Request) {
	_, user, ok := a.sessionUser(w, r)
	if !ok {
		return
	}
	if user.TOTPEnabled {
		writeError(w, http.StatusConflict, "2fa_enabled", "two-factor authentication is already set up")
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: user.Email,
	})
	if err != nil {
		slog.Error("totp generate failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "an internal error occurred")
		return
	}
	if err := a.users.SetTOTPSecret(r.Context(), user.ID, key.Secret()); err != nil {
		slog.Error("save totp secret failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "an internal error occurred")
		return
	}

	qrPNG, err := qrcode.Encode(key.URL(), qrcode.Medium, 256)
	if err != nil {
		slog.Error("qr code generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "an internal error occurred")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"secret":     key.Secret(),
		"otpauthURL": key.URL(),
		"qrCode":     base64.StdEncoding.EncodeToString(qrPNG),
	})
}

// TwoFAVerify validates a TOTP code and completes authentication. The first
// successful code enables 2FA on the account.
func (a *Auth) TwoFAVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	sess, user, ok := a.sessionUser(w, r)
	if !ok {
		return
	}
	if user.TOTPSecret == nil {
		writeError(w, http.StatusConflict, "2fa_setup_required", "set up two-factor authentication first")
		return
	}
	if !totp.Validate(req.Code, *user.TOTPSecret) {
		writeError(w, http.StatusUnauthorized, "invalid_code", "invalid code, please try again")
		return
	}

	if !user.TOTPEnabled {
		if err := a.users.EnableTOTP(r.Context(), user.ID); err != nil {
			slog.Error("enable totp failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal", "an internal error occurred")
			return
		}
		user.TOTPEnabled = true
	}

	sess.TwoFADone = true
	if err := a.sessions.Update(r.Context(), r, sess); err != nil {
		slog.Error("session update failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "an internal error occurred")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: user, Next: "done"})
}

// Logout destroys the session.
func (a *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.Destroy(r.Context(), w, r); err != nil {
		slog.Warn("session destroy failed", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me describes the current caller. Anonymous callers get {"authenticated":false}.
func (a *Auth) Me(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"email":         p.Email,
		"displayName":   p.DisplayName,
		"twoFADone":     p.TwoFADone,
		"isAdmin":       p.IsAdmin,
	})
}

// CSRF returns the token to echo in the X-CSRF-Token header.
func (a *Auth) CSRF(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"token": middleware.CSRFToken(r)})
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"errors"
	"net/http"

	"github.com/samber/oops"

	"github.com/holomush/warden/internal/auth"
)

// formValues returns the named body fields, or ok=false if any is absent.
// A present but empty field counts as supplied.
func formValues(r *http.Request, names ...string) (values []string, ok bool, err error) {
	if err := r.ParseForm(); err != nil {
		return nil, false, errorStatus(http.StatusBadRequest)
	}
	values = make([]string, len(names))
	for i, name := range names {
		if !r.PostForm.Has(name) {
			return nil, false, nil
		}
		values[i] = r.PostForm.Get(name)
	}
	return values, true, nil
}

func sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (h *handlers) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *handlers) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *handlers) index(w http.ResponseWriter, _ *http.Request) error {
	respondJSON(w, http.StatusOK, messageBody{Message: "Bienvenue"})
	return nil
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) error {
	values, ok, err := formValues(r, "email", "password")
	if err != nil {
		return err
	}
	if !ok {
		return errorStatus(http.StatusBadRequest)
	}
	email, password := values[0], values[1]

	if _, err := h.auth.Register(r.Context(), email, password); err != nil {
		if errors.Is(err, auth.ErrAlreadyRegistered) {
			return errorMessage(http.StatusConflict, "email already registered")
		}
		return oops.With("operation", "register").Wrap(err)
	}
	respondJSON(w, http.StatusOK, emailMessageBody{Email: email, Message: "user created"})
	return nil
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) error {
	values, ok, err := formValues(r, "email", "password")
	if err != nil {
		return err
	}
	if !ok {
		return errorStatus(http.StatusBadRequest)
	}
	email, password := values[0], values[1]

	valid, err := h.auth.ValidLogin(r.Context(), email, password)
	if err != nil {
		return oops.With("operation", "validate login").Wrap(err)
	}
	if !valid {
		return errorStatus(http.StatusUnauthorized)
	}

	token, err := h.auth.CreateSession(r.Context(), email)
	if err != nil {
		return oops.With("operation", "create session").Wrap(err)
	}
	h.setSession(w, token)
	respondJSON(w, http.StatusOK, emailMessageBody{Email: email, Message: "logged in"})
	return nil
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) error {
	user, err := h.auth.ResolveSession(r.Context(), sessionToken(r))
	if err != nil {
		return oops.With("operation", "resolve session").Wrap(err)
	}
	if user == nil {
		return errorStatus(http.StatusForbidden)
	}

	if err := h.auth.DestroySession(r.Context(), user.ID); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return errorStatus(http.StatusForbidden)
		}
		return oops.With("operation", "destroy session").Wrap(err)
	}
	h.clearSession(w)
	http.Redirect(w, r, "/", http.StatusFound)
	return nil
}

func (h *handlers) profile(w http.ResponseWriter, r *http.Request) error {
	user, err := h.auth.ResolveSession(r.Context(), sessionToken(r))
	if err != nil {
		return oops.With("operation", "resolve session").Wrap(err)
	}
	if user == nil {
		return errorStatus(http.StatusForbidden)
	}
	respondJSON(w, http.StatusOK, profileBody{Email: user.Email})
	return nil
}

func (h *handlers) requestReset(w http.ResponseWriter, r *http.Request) error {
	values, ok, err := formValues(r, "email")
	if err != nil {
		return err
	}
	if !ok {
		return errorStatus(http.StatusForbidden)
	}
	email := values[0]

	token, err := h.auth.RequestPasswordReset(r.Context(), email)
	if err != nil {
		if errors.Is(err, auth.ErrResetRequest) {
			return errorStatus(http.StatusForbidden)
		}
		return oops.With("operation", "request password reset").Wrap(err)
	}
	respondJSON(w, http.StatusOK, resetTokenBody{Email: email, ResetToken: token})
	return nil
}

func (h *handlers) updatePassword(w http.ResponseWriter, r *http.Request) error {
	values, ok, err := formValues(r, "email", "reset_token", "new_password")
	if err != nil {
		return err
	}
	if !ok {
		return errorStatus(http.StatusForbidden)
	}
	email, resetToken, newPassword := values[0], values[1], values[2]

	if err := h.auth.UpdatePassword(r.Context(), resetToken, newPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidResetToken) {
			return errorStatus(http.StatusForbidden)
		}
		return oops.With("operation", "update password").Wrap(err)
	}
	respondJSON(w, http.StatusOK, emailMessageBody{Email: email, Message: "Password updated"})
	return nil
}

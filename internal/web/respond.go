// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"encoding/json"
	"net/http"
)

// httpError is a handler failure with a status and a public message.
type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string { return e.message }

func errorStatus(status int) *httpError {
	return &httpError{status: status, message: http.StatusText(status)}
}

func errorMessage(status int, message string) *httpError {
	return &httpError{status: status, message: message}
}

// respondJSON writes v as the JSON response body.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away; nothing left to report to
	json.NewEncoder(w).Encode(v)
}

type messageBody struct {
	Message string `json:"message"`
}

type emailMessageBody struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

type profileBody struct {
	Email string `json:"email"`
}

type resetTokenBody struct {
	Email      string `json:"email"`
	ResetToken string `json:"reset_token"`
}

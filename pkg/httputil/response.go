package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorResponse is the body of every error response. Kind is a stable
// machine-readable classification; Error is meant for humans.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Kind    string            `json:"kind,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

const (
	KindValidation = "validation"
	KindNotFound   = "not_found"
	KindInternal   = "internal"
)

// WriteJSON encodes v with the given status
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// OK writes v with 200
func OK(w http.ResponseWriter, v any) {
	_ = WriteJSON(w, http.StatusOK, v)
}

// Created writes v with 201 and, when location is set, a Location header
func Created(w http.ResponseWriter, location string, v any) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	_ = WriteJSON(w, http.StatusCreated, v)
}

// Fail writes an error body
func Fail(w http.ResponseWriter, status int, resp ErrorResponse) {
	_ = WriteJSON(w, status, resp)
}

// BadRequest answers 400 with the validation kind
func BadRequest(w http.ResponseWriter, message string) {
	Fail(w, http.StatusBadRequest, ErrorResponse{Error: message, Kind: KindValidation})
}

// NotFound answers 404
func NotFound(w http.ResponseWriter, message string) {
	Fail(w, http.StatusNotFound, ErrorResponse{Error: message, Kind: KindNotFound})
}

// Internal answers 500 with a generic message; the cause is never exposed
func Internal(w http.ResponseWriter) {
	Fail(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Kind: KindInternal})
}

// Binary writes a file body served inline
func Binary(w http.ResponseWriter, contentType, filename string, data []byte) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(data)))
	if filename != "" {
		h.Set("Content-Disposition", `inline; filename="`+filename+`"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

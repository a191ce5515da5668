package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// DecodeJSON decodes exactly one JSON value from the body into dest.
// Unknown fields and trailing data are rejected.
func DecodeJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("invalid JSON: empty body")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON: unexpected data after the object")
	}
	return nil
}

// BindJSON is DecodeJSON that answers 400 itself and reports whether the
// handler should continue
func BindJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := DecodeJSON(r, dest); err != nil {
		BadRequest(w, err.Error())
		return false
	}
	return true
}

// BindOptionalJSON leaves dest untouched when the request has no body
func BindOptionalJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return true
	}
	return BindJSON(w, r, dest)
}

// PathParam returns a non-empty route variable or answers 400
func PathParam(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	val := mux.Vars(r)[key]
	if val == "" {
		BadRequest(w, "missing path parameter: "+key)
		return "", false
	}
	return val, true
}

// Query reads typed query parameters and keeps the first parse error, so a
// handler can read all of them and check Err once.
type Query struct {
	values map[string][]string
	err    error
}

// NewQuery wraps the request's query string
func NewQuery(r *http.Request) *Query {
	return &Query{values: r.URL.Query()}
}

func (q *Query) raw(key string) string {
	if v := q.values[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// String returns the parameter or def when absent
func (q *Query) String(key, def string) string {
	if v := q.raw(key); v != "" {
		return v
	}
	return def
}

// Int parses a non-negative integer parameter
func (q *Query) Int(key string, def int) int {
	v := q.raw(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		q.fail(fmt.Errorf("query parameter %s must be a non-negative integer, got %q", key, v))
		return def
	}
	return n
}

// Bool parses a boolean parameter (1, t, true, 0, f, false, ...)
func (q *Query) Bool(key string, def bool) bool {
	v := q.raw(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		q.fail(fmt.Errorf("query parameter %s must be a boolean, got %q", key, v))
		return def
	}
	return b
}

func (q *Query) fail(err error) {
	if q.err == nil {
		q.err = err
	}
}

// Err is the first parse error, if any
func (q *Query) Err() error {
	return q.err
}

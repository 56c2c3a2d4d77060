package web

import (
	"errors"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"officehours/internal/engine"
	"officehours/internal/ics"
	"officehours/internal/timeutil"
)

// Error is the JSON body of every failed API call. Err lists the causes, one
// entry per rejected field or joined error.
type Error struct {
	Message string   `json:"message,omitempty"`
	Err     []string `json:"err,omitempty"`
}

func NewError(message string, cause error) *Error {
	return &Error{Message: message, Err: causes(cause)}
}

func causes(err error) []string {
	if err == nil {
		return nil
	}

	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		out := make([]string, 0, len(fields))
		for _, f := range fields {
			out = append(out, fieldMessage(f))
		}
		return out
	}

	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, causes(e)...)
		}
		return out
	}
	return []string{err.Error()}
}

// fieldMessage renders a binding failure with the request's own field path,
// e.g. "start.hour must be <= 12".
func fieldMessage(f validator.FieldError) string {
	field := jsonPath(f.Namespace())
	switch f.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must be >= " + f.Param()
	case "max":
		return field + " must be <= " + f.Param()
	default:
		return field + " failed " + f.Tag()
	}
}

// jsonPath turns a validator namespace such as
// "createRequest.ownerFields.OwnerID" into the JSON path "owner_id". The
// request type and embedded unexported structs are dropped.
func jsonPath(ns string) string {
	parts := strings.Split(ns, ".")
	kept := make([]string, 0, len(parts))
	for _, p := range parts[1:] {
		if p == "" || unicode.IsLower(rune(p[0])) {
			continue
		}
		kept = append(kept, toSnake(p))
	}
	return strings.Join(kept, ".")
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 && !unicode.IsUpper(rune(s[i-1])) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// statusFor maps engine and store failures to an HTTP status and a short
// message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, timeutil.ErrInvalidTemporalParameters):
		return http.StatusBadRequest, "invalid date or time"
	case errors.Is(err, engine.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, ics.ErrStoreCorrupt):
		return http.StatusInternalServerError, "calendar store is corrupt"
	case errors.Is(err, ics.ErrPersistFailure):
		return http.StatusInternalServerError, "saving the calendar failed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

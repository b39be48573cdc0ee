package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/perfecto-hq/perfecto/internal/auth"
	"github.com/perfecto-hq/perfecto/internal/invitation"
	"github.com/perfecto-hq/perfecto/internal/org"
	"github.com/perfecto-hq/perfecto/internal/permission"
	"github.com/perfecto-hq/perfecto/internal/review"
	"github.com/perfecto-hq/perfecto/internal/user"
	"github.com/perfecto-hq/perfecto/internal/validate"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// errorEnvelope is the standard error response shape.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorEnvelope{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeValidationError reports field-level messages with 422.
func writeValidationError(w http.ResponseWriter, verr *validate.Error) {
	writeJSON(w, http.StatusUnprocessableEntity, errorEnvelope{
		Error: errorDetail{
			Code:    "validation_error",
			Message: "please correct the errors below",
			Fields:  verr.Fields,
		},
	})
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON decodes the request body into v, enforcing a size limit.
func readJSON(r *http.Request, v interface{}) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	return json.NewDecoder(lr).Decode(v)
}

// decodeBody reads the request body into v and writes a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := readJSON(r, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return false
	}
	return true
}

// pathID parses the named URL parameter as a positive integer id. A
// malformed id is answered with 404, as no such resource can exist.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return 0, false
	}
	return id, true
}

func isValidationError(err error) bool {
	var verr *validate.Error
	return errors.As(err, &verr)
}

func isNotFound(err error) bool {
	for _, target := range []error{
		user.ErrNotFound,
		org.ErrCompanyNotFound,
		org.ErrTeamNotFound,
		invitation.ErrNotFound,
		review.ErrReviewNotFound,
		review.ErrAchievementNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// writeServiceError maps a service error onto the HTTP envelope. Unknown
// errors are logged and reported as 500 without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		writeValidationError(w, verr)
	case errors.Is(err, permission.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "you do not have permission to perform this action")
	case errors.Is(err, user.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
	case isNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// actorID returns the authenticated user's id. Routes that call it are
// mounted behind RequireUser.
func actorID(r *http.Request) int64 {
	if u := auth.UserFromContext(r.Context()); u != nil {
		return u.ID
	}
	return 0
}

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"fundimart.org/internal/audit"
	"fundimart.org/internal/auth"
	"fundimart.org/internal/obs"
	"fundimart.org/internal/workflow"
)

const wwwAuthenticate = `Bearer realm="fundimart"`

type errorBody struct {
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeReason(w, r, code, msg, "")
}

func writeReason(w http.ResponseWriter, r *http.Request, code int, msg, reason string) {
	if code == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
		w.Header().Set("WWW-Authenticate", wwwAuthenticate)
	}
	writeJSON(w, code, errorBody{
		Error:     msg,
		Reason:    reason,
		RequestID: audit.RequestIDFromContext(r.Context()),
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

// classify maps a service error onto a status code and a machine-readable reason.
func classify(err error) (int, string) {
	if reason := auth.ReasonOf(err); reason != auth.ReasonNone {
		switch reason {
		case auth.ReasonUnauthenticated:
			return http.StatusUnauthorized, string(reason)
		case auth.ReasonNotFound:
			return http.StatusNotFound, string(reason)
		default:
			return http.StatusForbidden, string(reason)
		}
	}
	switch {
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, string(auth.ReasonUnauthenticated)
	case errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound, "not-found"
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, workflow.ErrInvalidTransition):
		return http.StatusConflict, "invalid-transition"
	case errors.Is(err, auth.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, auth.ErrDerivationGap):
		return http.StatusUnprocessableEntity, "derivation-gap"
	case errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest, "invalid-input"
	case errors.Is(err, workflow.ErrGenerationFailed):
		return http.StatusBadGateway, "generation-failed"
	}
	return http.StatusInternalServerError, ""
}

// handleError writes the response for a failed service call.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	code, reason := classify(err)
	if code == http.StatusInternalServerError {
		obs.Logger().Error().
			Err(err).
			Str("request_id", audit.RequestIDFromContext(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request_failed")
		writeError(w, r, code, "internal error")
		return
	}
	writeReason(w, r, code, err.Error(), reason)
}

// observe records the gate outcome of a service call that evaluated action.
func observe(action auth.Action, err error) {
	obs.ObserveDecision(action.Name, string(auth.ReasonOf(err)))
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// badBody reports a body decoding failure.
func badBody(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeReason(w, r, http.StatusBadRequest, err.Error(), "invalid-input")
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max))
	}
	return val, nil
}

package gateway

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/youwol/ywdash/errors"
	"github.com/youwol/ywdash/pkg/worker"
)

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func accepted(w http.ResponseWriter) {
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// fail answers with the status matching err and logs the full error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	s.requestsFailed.Add(1)
	s.logger.Warn("Gateway request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", code,
		"request_id", w.Header().Get(RequestIDHeader),
		"error", err)
	writeJSON(w, code, ErrorResponse{Error: publicMessage(code, err), Status: code})
}

// statusFor maps ywdash errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusInternalServerError
	case stderrors.Is(err, errors.ErrEntityNotFound), stderrors.Is(err, errors.ErrSessionNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, errors.ErrRequestFailed):
		return http.StatusBadGateway
	case errors.IsInvalid(err):
		return http.StatusBadRequest
	case stderrors.Is(err, worker.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.IsFatal(err):
		return http.StatusInternalServerError
	case errors.IsTransient(err):
		if strings.Contains(err.Error(), "timeout") {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the message shown to clients. Only bad requests carry
// the error detail; the rest stays in the logs.
func publicMessage(code int, err error) string {
	switch code {
	case http.StatusBadRequest:
		return err.Error()
	case http.StatusNotFound:
		return "resource not found"
	case http.StatusBadGateway:
		return "daemon request failed"
	case http.StatusGatewayTimeout:
		return "request timeout"
	case http.StatusServiceUnavailable:
		return "service temporarily unavailable"
	default:
		return "internal server error"
	}
}

// readBody reads a bounded request body.
func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize+1))
	if err != nil {
		return nil, errors.WrapInvalid(err, "gateway", "readBody", "read request body")
	}
	if len(body) > maxRequestSize {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "gateway", "readBody",
			fmt.Sprintf("check size (limit %d bytes)", maxRequestSize))
	}
	return body, nil
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.WrapInvalid(err, "gateway", "decodeBody", "decode request body")
	}
	return nil
}

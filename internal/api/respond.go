package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"trading-arena/internal/domain"
)

const (
	codeInternal = "INTERNAL_ERROR"
	maxBodyBytes = 1 << 20
)

// envelope is the body of every API response.
type envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   map[string]any `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// writeError maps err to a status and a structured error body. Details of
// a domain error are flattened next to code and message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		s.logger.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, envelope{Error: map[string]any{
			"code":    codeInternal,
			"message": "something went wrong",
		}})
		return
	}

	body := make(map[string]any, len(derr.Details)+2)
	for k, v := range derr.Details {
		body[k] = v
	}
	body["code"] = derr.Code
	body["message"] = derr.Message
	writeJSON(w, statusFor(derr.Code), envelope{Error: body})
}

func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized
	case domain.CodeNoCredits:
		return http.StatusPaymentRequired
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeAgentNotFound:
		return http.StatusNotFound
	case domain.CodeTradeLimitReached:
		return http.StatusTooManyRequests
	case domain.CodeDecisionSource, domain.CodePriceUnavailable:
		return http.StatusBadGateway
	}
	return http.StatusBadRequest
}

// decodeBody reads a JSON body into v. With allowEmpty, a missing body
// leaves v untouched.
func decodeBody(r *http.Request, v any, code domain.ErrorCode, allowEmpty bool) error {
	if r.Body == nil {
		if allowEmpty {
			return nil
		}
		return domain.NewError(code, "request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return domain.NewError(code, "invalid JSON body: %v", err)
	}
	return nil
}

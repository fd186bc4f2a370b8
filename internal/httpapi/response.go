package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
)

// HTTP-only error codes.
const (
	CodeRateLimited    = "rate_limited"
	CodeInvalidRequest = "invalid_request"
)

const maxBodyBytes = 16 << 10

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code string) {
	writeJSON(w, statusCode, map[string]any{"success": false, "error": code})
}

// mapError turns an engine error into a status and taxonomy code.
func mapError(err error) (int, string) {
	code := goRiskAuth.ErrorCode(err)
	switch code {
	case goRiskAuth.CodeInvalidCredentials,
		goRiskAuth.CodeMFARequired,
		goRiskAuth.CodeInvalidMFA,
		goRiskAuth.CodeInvalidToken,
		goRiskAuth.CodeTokenExpired,
		goRiskAuth.CodeSessionInvalid:
		return http.StatusUnauthorized, code
	case goRiskAuth.CodeAccountLocked:
		return http.StatusLocked, code
	case goRiskAuth.CodeHighRiskBlocked:
		return http.StatusForbidden, code
	case goRiskAuth.CodeNotFound:
		return http.StatusNotFound, code
	case goRiskAuth.CodeMFANotEnrolled, goRiskAuth.CodeMFAAlreadyEnabled:
		return http.StatusConflict, code
	default:
		return http.StatusInternalServerError, goRiskAuth.CodeInternal
	}
}

func (h *Handler) writeMappedError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := mapError(err)
	if status >= 500 {
		h.logger.Error("http operation failed", opFields(r, op, code, err)...)
	}
	writeError(w, status, code)
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

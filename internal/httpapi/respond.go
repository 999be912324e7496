package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/processlens/engine/internal/apperr"
)

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
	Details string      `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps err to a Code via apperr.CodeOf and writes spec's
// {error: {code, message, details?}} envelope, generalizing the teacher's
// isNotFound/writeError string-sniffing into a typed lookup table.
func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	writeJSON(w, code.HTTPStatus(), errorBody{Error: errorPayload{
		Code:    code,
		Message: err.Error(),
	}})
}

func writeErrorCode(w http.ResponseWriter, code apperr.Code, message string) {
	writeJSON(w, code.HTTPStatus(), errorBody{Error: errorPayload{Code: code, Message: message}})
}

func decodeJSON(body io.ReadCloser, dst any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(apperr.CodeInvalidArgument, "decodeJSON", err)
	}
	return nil
}

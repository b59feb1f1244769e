package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"sdui/internal/screen"
	"sdui/internal/util/jsonutil"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Errors  []screen.FieldError `json:"errors,omitempty"`
}

// writeError maps the store taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var ve *screen.ValidationError
	switch {
	case errors.As(err, &ve):
		jsonutil.WriteJSON(w, http.StatusUnprocessableEntity, errorBody{
			Code:    "validation_failed",
			Message: "validation failed",
			Errors:  ve.Errors,
		})
	case errors.Is(err, screen.ErrNotFound):
		jsonutil.WriteJSON(w, http.StatusNotFound, errorBody{Code: "not_found", Message: err.Error()})
	default:
		log.Printf("handler: internal error: %v", err)
		jsonutil.WriteJSON(w, http.StatusInternalServerError, errorBody{Code: "internal", Message: err.Error()})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	jsonutil.WriteJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_argument", Message: msg})
}

// readJSON decodes a bounded request body into v.
func readJSON(r *http.Request, v any) ([]byte, error) {
	raw, err := jsonutil.ReadBody(r.Body, maxBodyBytes)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, err
	}
	return raw, nil
}

func queryVariant(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("variant"))
}

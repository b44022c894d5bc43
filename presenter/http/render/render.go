package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/omni/question-oracle/logging"
)

var ErrNotFound = errors.New("not found")

type errorResponse struct {
	Error string `json:"error"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, res interface{}) {
	blob, err := marshal(r, res)
	if err != nil {
		Error(w, r, fmt.Errorf("failed to marshal JSON result: %w", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(blob)
}

func marshal(r *http.Request, res interface{}) ([]byte, error) {
	if pretty, _ := strconv.ParseBool(r.URL.Query().Get("pretty")); pretty {
		return json.MarshalIndent(res, "", "  ")
	}
	return json.Marshal(res)
}

// Error renders not found errors with 404, everything else is logged and rendered with 500.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrNotFound) {
		JSON(w, r, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	logger := logging.LoggerFromContext(r.Context())
	logger.WithError(err).Error("request handling failed")
	JSON(w, r, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func BadRequest(w http.ResponseWriter, r *http.Request, err error) {
	JSON(w, r, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

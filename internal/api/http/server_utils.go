package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"trackcache/internal/domain"
	"trackcache/internal/usecase"
)

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeUseCaseError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "track not found")
		return
	}
	if errors.Is(err, domain.ErrUnsafeName) {
		writeError(w, http.StatusForbidden, "forbidden", "file name is not allowed")
		return
	}
	if errors.Is(err, usecase.ErrUpstream) {
		writeError(w, http.StatusBadGateway, "upstream_error", "music provider unavailable")
		return
	}
	if errors.Is(err, usecase.ErrStore) {
		writeError(w, http.StatusInternalServerError, "store_error", "store unavailable")
		return
	}

	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorPayload{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

var (
	errInvalidRange        = errors.New("invalid range")
	errRangeNotSatisfiable = errors.New("range not satisfiable")
)

// parseByteRange parses a Range header against the artifact size. Only the
// single form "bytes=<start>-<end?>" is accepted: suffix ranges, multi-range
// sets and other units are invalid rather than ignored, so a client that
// sends them gets a 400 instead of a silent full-body 200. An omitted end
// means end of file; a start or end beyond the file is not satisfiable.
func parseByteRange(value string, size int64) (int64, int64, error) {
	if size <= 0 {
		return 0, 0, errRangeNotSatisfiable
	}

	value = strings.TrimSpace(value)
	if !strings.HasPrefix(strings.ToLower(value), "bytes=") {
		return 0, 0, errInvalidRange
	}

	spec := strings.TrimSpace(value[len("bytes="):])
	if spec == "" || strings.Contains(spec, ",") {
		return 0, 0, errInvalidRange
	}

	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, errInvalidRange
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)
	if startStr == "" {
		return 0, 0, errInvalidRange
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, errInvalidRange
	}
	if start >= size {
		return 0, 0, errRangeNotSatisfiable
	}

	if endStr == "" {
		return start, size - 1, nil
	}

	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < 0 {
		return 0, 0, errInvalidRange
	}
	if end >= size || end < start {
		return 0, 0, errRangeNotSatisfiable
	}
	return start, end, nil
}

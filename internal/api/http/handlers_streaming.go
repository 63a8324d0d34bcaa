package apihttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"
)

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.artifacts == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "artifact directory not configured")
		return
	}

	name := streamPath(r.URL.Path)
	if name == "" {
		writeError(w, http.StatusNotFound, "not_found", "track not found")
		return
	}

	path, err := s.artifacts.Resolve(name)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "not_found", "track not found")
			return
		}
		s.logger.Error("stream open failed",
			slog.String("fileName", name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "cannot open artifact")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		writeError(w, http.StatusNotFound, "not_found", "track not found")
		return
	}
	size := info.Size()

	// The file is present, so bump its access time off the request path.
	s.touchAsync(name)

	w.Header().Set("Content-Type", "audio/opus")
	w.Header().Set("Accept-Ranges", "bytes")

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := io.Copy(w, f); err != nil {
			s.logger.Debug("stream aborted",
				slog.String("fileName", name),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	start, end, err := parseByteRange(rangeHeader, size)
	if errors.Is(err, errRangeNotSatisfiable) {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		writeError(w, http.StatusRequestedRangeNotSatisfiable, "invalid_range", "requested range not satisfiable")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_range", "malformed range header")
		return
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "cannot read artifact")
		return
	}

	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.CopyN(w, f, end-start+1); err != nil {
		s.logger.Debug("stream aborted",
			slog.String("fileName", name),
			slog.String("error", err.Error()),
		)
	}
}

// touchAsync records the access without blocking or failing the stream; a
// lost touch only costs eviction ordering.
func (s *Server) touchAsync(name string) {
	if s.touchTrack == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.touchTrack.Execute(ctx, name); err != nil {
			s.logger.Warn("touch failed",
				slog.String("fileName", name),
				slog.String("error", err.Error()),
			)
		}
	}()
}

package adapthttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"

	"bmitracker/internal/app"
)

// writeJSON encodes v before sending the status so an unencodable value
// becomes a 500 instead of a success with an empty body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

// writeAppError maps application errors to HTTP statuses. Unknown errors are
// logged and reported as 500 without detail.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrMissingFields),
		errors.Is(err, app.ErrPasswordMismatch),
		errors.Is(err, app.ErrInvalidHeight),
		errors.Is(err, app.ErrInvalidWeight),
		errors.Is(err, app.ErrUnknownUnit),
		errors.Is(err, app.ErrNonFiniteBMI):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, app.ErrUsernameTaken):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err)
	default:
		s.log().ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func parseJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func withNoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func spaFromDisk(dir string) http.Handler {
	fileServer := http.FileServer(http.Dir(dir))
	indexPath := path.Join(dir, "index.html")
	chartsPath := path.Join(dir, "charts.html")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqPath := path.Clean(r.URL.Path)
		if strings.HasPrefix(reqPath, "/api/") {
			writeError(w, http.StatusNotFound, errors.New("not found"))
			return
		}
		if reqPath == "/" {
			http.ServeFile(w, r, indexPath)
			return
		}
		if reqPath == "/charts" {
			if _, err := os.Stat(chartsPath); err == nil {
				http.ServeFile(w, r, chartsPath)
				return
			}
		}

		staticPath := path.Join(dir, reqPath)
		if fi, err := os.Stat(staticPath); err == nil && !fi.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}

		http.ServeFile(w, r, indexPath)
	})
}

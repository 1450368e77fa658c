package health

import (
	"fmt"
	"io/fs"
	"net/http"
)

// Healthz returns 200 "ok\n" unconditionally.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Check reports why the service cannot serve traffic, or nil.
type Check func() error

// Readyz returns a handler answering 200 "ready\n" when every check passes
// and 503 with the first failure otherwise.
func Readyz(checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		for _, check := range checks {
			if err := check(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, "not ready: %v\n", err)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready\n"))
	}
}

// DirReadable passes when the root of fsys can be listed.
func DirReadable(fsys fs.FS) Check {
	return func() error {
		if _, err := fs.ReadDir(fsys, "."); err != nil {
			return fmt.Errorf("scene root unreadable: %w", err)
		}
		return nil
	}
}

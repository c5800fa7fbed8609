package httpapi

import (
	"database/sql"
	"net/http"
)

// NewMux builds the root mux with the cross-cutting routes; feature modules
// register their own routes afterwards.
func NewMux(db *sql.DB, staticDir string, metricsHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}

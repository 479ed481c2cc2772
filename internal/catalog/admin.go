package catalog

import (
	"log"
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
)

// AttachAdminRoutes mounts a tailSQL console for the catalog under
// /debug/tailsql/ on mux, for live inspection of datasets and runs.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "Illumination Catalog",
	})

	mux.Handle("/debug/tailsql/", tsql.NewMux())
}

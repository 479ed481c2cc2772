package catalog

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAttachAdminRoutesServesTailsql(t *testing.T) {
	db := openTestDB(t)

	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/tailsql/", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /debug/tailsql/ = %d, want %d", rr.Code, http.StatusOK)
	}
}

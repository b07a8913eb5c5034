package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestPathParsers(t *testing.T) {
	logger := zap.NewNop()
	parsers := []struct {
		name      string
		param     string
		parse     func(http.ResponseWriter, *http.Request, *zap.Logger) (uuid.UUID, bool)
		wantError string
	}{
		{"tenant", "tenant_id", ParseTenantID, "invalid_tenant_id"},
		{"datasource", "id", ParseDatasourceID, "invalid_datasource_id"},
		{"file", "fid", ParseFileID, "invalid_file_id"},
	}
	values := []struct {
		name   string
		value  string
		wantOK bool
	}{
		{"valid UUID", "550e8400-e29b-41d4-a716-446655440000", true},
		{"invalid UUID", "not-a-uuid", false},
		{"empty UUID", "", false},
	}

	for _, p := range parsers {
		for _, v := range values {
			t.Run(p.name+"/"+v.name, func(t *testing.T) {
				req := httptest.NewRequest(http.MethodGet, "/test", nil)
				req.SetPathValue(p.param, v.value)
				rec := httptest.NewRecorder()

				id, ok := p.parse(rec, req, logger)
				if ok != v.wantOK {
					t.Fatalf("ok = %v, want %v", ok, v.wantOK)
				}
				if ok {
					if id.String() != v.value {
						t.Errorf("id = %v, want %v", id, v.value)
					}
					return
				}

				if id != uuid.Nil {
					t.Errorf("id = %v, want uuid.Nil", id)
				}
				if rec.Code != http.StatusBadRequest {
					t.Errorf("status = %v, want %v", rec.Code, http.StatusBadRequest)
				}
				var resp map[string]string
				if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if resp["error"] != p.wantError {
					t.Errorf("error = %v, want %v", resp["error"], p.wantError)
				}
			})
		}
	}
}

func TestParseTenantAndDatasourceIDs(t *testing.T) {
	tenant, ds := uuid.New(), uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.SetPathValue("tenant_id", tenant.String())
	req.SetPathValue("id", ds.String())

	gotTenant, gotDS, ok := ParseTenantAndDatasourceIDs(httptest.NewRecorder(), req, zap.NewNop())
	if !ok || gotTenant != tenant || gotDS != ds {
		t.Fatalf("got (%v, %v, %v)", gotTenant, gotDS, ok)
	}

	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()
	if _, _, ok := ParseTenantAndDatasourceIDs(rec, req, zap.NewNop()); ok {
		t.Fatal("expected failure for invalid datasource id")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/services"
)

// TenantMiddleware wraps a tenant-scoped handler.
type TenantMiddleware func(http.HandlerFunc) http.HandlerFunc

// maxRequestBytes bounds JSON request bodies.
const maxRequestBytes = 1 << 20

// ListDatasourcesResponse wraps the array of data sources.
type ListDatasourcesResponse struct {
	Datasources []*services.SourceView `json:"datasources"`
}

// DatasourceTypesResponse lists the registered relational dialects.
type DatasourceTypesResponse struct {
	Types []datasource.DialectInfo `json:"types"`
}

// QueryRequest is the body of POST .../query.
type QueryRequest struct {
	SQL    string         `json:"sql"`
	Params map[string]any `json:"params,omitempty"`
	Limit  int            `json:"limit,omitempty"`
}

// TestConnectionResponse for connection test result.
type TestConnectionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// DatasourcesHandler handles datasource-related HTTP requests.
type DatasourcesHandler struct {
	datasourceService    services.DatasourceService
	queryService         services.QueryService
	introspectionService services.IntrospectionService
	defaultRowLimit      int
	logger               *zap.Logger
}

// NewDatasourcesHandler creates a new datasources handler.
// defaultRowLimit applies to queries that do not ask for a limit.
func NewDatasourcesHandler(
	datasourceService services.DatasourceService,
	queryService services.QueryService,
	introspectionService services.IntrospectionService,
	defaultRowLimit int,
	logger *zap.Logger,
) *DatasourcesHandler {
	return &DatasourcesHandler{
		datasourceService:    datasourceService,
		queryService:         queryService,
		introspectionService: introspectionService,
		defaultRowLimit:      defaultRowLimit,
		logger:               logger,
	}
}

// RegisterRoutes registers the datasources handler's routes on the given mux.
func (h *DatasourcesHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("GET /api/datasources/types", h.Types)

	base := "/api/tenants/{tenant_id}/datasources"
	mux.HandleFunc("GET "+base, tenantMiddleware(h.List))
	mux.HandleFunc("POST "+base, tenantMiddleware(h.Create))
	mux.HandleFunc("POST "+base+"/test", tenantMiddleware(h.TestConfig))
	mux.HandleFunc("GET "+base+"/{id}", tenantMiddleware(h.Get))
	mux.HandleFunc("PUT "+base+"/{id}", tenantMiddleware(h.Update))
	mux.HandleFunc("DELETE "+base+"/{id}", tenantMiddleware(h.Delete))
	mux.HandleFunc("POST "+base+"/{id}/test", tenantMiddleware(h.Test))
	mux.HandleFunc("POST "+base+"/{id}/query", tenantMiddleware(h.Query))
	mux.HandleFunc("GET "+base+"/{id}/schema", tenantMiddleware(h.Schema))
}

// Types handles GET /api/datasources/types
func (h *DatasourcesHandler) Types(w http.ResponseWriter, r *http.Request) {
	h.writeOK(w, http.StatusOK, DatasourceTypesResponse{Types: datasource.RegisteredDialects()})
}

// List handles GET /api/tenants/{tenant_id}/datasources
// Sources whose credentials cannot be decrypted are listed without a config.
func (h *DatasourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := ParseTenantID(w, r, h.logger)
	if !ok {
		return
	}

	sources, err := h.datasourceService.List(r.Context(), tenantID)
	if err != nil {
		WriteServiceError(w, err, h.logger, "Failed to list datasources", zap.String("tenant_id", tenantID.String()))
		return
	}

	data := ListDatasourcesResponse{Datasources: make([]*services.SourceView, len(sources))}
	for i, src := range sources {
		view, err := h.datasourceService.Describe(src)
		if err != nil {
			h.logger.Warn("Failed to decrypt datasource config",
				zap.String("datasource_id", src.ID.String()),
				zap.String("error", err.Error()))
			view = &services.SourceView{DataSource: src}
		}
		data.Datasources[i] = view
	}

	h.writeOK(w, http.StatusOK, data)
}

// Create handles POST /api/tenants/{tenant_id}/datasources
func (h *DatasourcesHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := ParseTenantID(w, r, h.logger)
	if !ok {
		return
	}
	var in services.DataSourceInput
	if !h.decode(w, r, &in) {
		return
	}

	view, err := h.datasourceService.Create(r.Context(), tenantID, &in)
	if err != nil {
		WriteServiceError(w, err, h.logger, "Failed to create datasource", zap.String("tenant_id", tenantID.String()))
		return
	}
	h.writeOK(w, http.StatusCreated, view)
}

// Get handles GET /api/tenants/{tenant_id}/datasources/{id}
func (h *DatasourcesHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, datasourceID, ok := ParseTenantAndDatasourceIDs(w, r, h.logger)
	if !ok {
		return
	}

	src, err := h.datasourceService.Get(r.Context(), tenantID, datasourceID)
	if err != nil {
		WriteServiceError(w, err, h.logger, "Failed to get datasource", zap.String("datasource_id", datasourceID.String()))
		return
	}
	view, err := h.datasourceService.Describe(src)
	if err != nil {
		WriteServiceError(w, err, h.logger, "Failed to describe datasource", zap.String("datasource_id", datasourceID.String()))
		return
	}
	h.writeOK(w, http.StatusOK, view)
}

// Update handles PUT /api/tenants/{tenant_id}/datasources/{id}
func (h *DatasourcesHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, datasourceID, ok := ParseTenantAndDatasourceIDs(w, r, h.logger)
	if !ok {
		return
	}
	var in services.DataSourceInput
	if !h.decode(w, r, &in) {
		return
	}

	view, err := h.datasourceService.Update(r.Context(), tenantID, datasourceID, &in)
	if err != nil {
		WriteServiceError(w, err, h.logger, "Failed to update datasource", zap.String("datasource_id", datasourceID.String()))
		return
	}
	h.writeOK(w, http.StatusOK, view)
}

// Delete handles DELETE /api/tenants/{tenant_id}/datasources/{id}
func (h *DatasourcesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, datasourceID, ok := ParseTenantAndDatasourceIDs(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.datasourceService.Delete(r.Context(), tenantID, datasourceID); err != nil {
		WriteServiceError(w, err, h.logger, "Failed to delete datasource", zap.String("datasource_id", datasourceID.String()))
		return
	}
	h.writeOK(w, http.StatusOK, map[string]string{"datasource_id": datasourceID.String()})
}

// Test handles POST /api/tenants/{tenant_id}/datasources/{id}/test
func (h *DatasourcesHandler) Test(w http.ResponseWriter, r *http.Request) {
	tenantID, datasourceID, ok := ParseTenantAndDatasourceIDs(w, r, h.logger)
	if !ok {
		return
	}
	err := h.datasourceService.Test(r.Context(), tenantID, datasourceID)
	h.writeTestResult(w, err)
}

// TestConfig handles POST /api/tenants/{tenant_id}/datasources/test for unsaved configs.
func (h *DatasourcesHandler) TestConfig(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := ParseTenantID(w, r, h.logger)
	if !ok {
		return
	}
	var in services.DataSourceInput
	if !h.decode(w, r, &in) {
		return
	}
	if in.Name == "" {
		in.Name = "connection-test"
	}
	err := h.datasourceService.TestConfig(r.Context(), tenantID, &in)
	h.writeTestResult(w, err)
}

// Query handles POST /api/tenants/{tenant_id}/datasources/{id}/query
func (h *DatasourcesHandler) Query(w http.ResponseWriter, r *http.Request) {
	tenantID, datasourceID, ok := ParseTenantAndDatasourceIDs(w, r, h.logger)
	if !ok {
		return
	}
	var req QueryRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Limit <= 0 {
		req.Limit = h.defaultRowLimit
	}

	src, err := h.datasourceService.Get(r.Context(), tenantID, datasourceID)
	if err != nil {
		WriteServiceError(w, err, h.logger, "Failed to load datasource", zap.String("datasource_id", datasourceID.String()))
		return
	}
	result, err := h.queryService.Execute(r.Context(), src, req.SQL, req.Params, req.Limit)
	if err != nil {
		WriteServiceError(w, err, h.logger, "Query failed", zap.String("datasource_id", datasourceID.String()))
		return
	}
	h.writeOK(w, http.StatusOK, result)
}

// Schema handles GET /api/tenants/{tenant_id}/datasources/{id}/schema
func (h *DatasourcesHandler) Schema(w http.ResponseWriter, r *http.Request) {
	tenantID, datasourceID, ok := ParseTenantAndDatasourceIDs(w, r, h.logger)
	if !ok {
		return
	}

	src, err := h.datasourceService.Get(r.Context(), tenantID, datasourceID)
	if err != nil {
		WriteServiceError(w, err, h.logger, "Failed to load datasource", zap.String("datasource_id", datasourceID.String()))
		return
	}
	catalog, err := h.introspectionService.Introspect(r.Context(), src)
	if err != nil {
		WriteServiceError(w, err, h.logger, "Introspection failed", zap.String("datasource_id", datasourceID.String()))
		return
	}
	h.writeOK(w, http.StatusOK, catalog)
}

// writeTestResult reports a failed connection test as a 200 with success=false, matching
// how clients render test results; only lookup failures are HTTP errors.
func (h *DatasourcesHandler) writeTestResult(w http.ResponseWriter, err error) {
	var resp TestConnectionResponse
	switch {
	case err == nil:
		resp = TestConnectionResponse{Success: true, Message: "Connection successful"}
	case errors.Is(err, apperrors.ErrNotFound),
		errors.Is(err, apperrors.ErrInvalidSourceConfig),
		errors.Is(err, apperrors.ErrCredentialsKeyMismatch):
		WriteServiceError(w, err, h.logger, "Connection test rejected")
		return
	default:
		resp = TestConnectionResponse{Success: false, Message: err.Error()}
	}
	h.writeOK(w, http.StatusOK, resp)
}

func (h *DatasourcesHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return false
	}
	return true
}

func (h *DatasourcesHandler) writeOK(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

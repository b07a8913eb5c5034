package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseTenantID extracts and validates the tenant ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: tenant_id
func ParseTenantID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "tenant_id", "invalid_tenant_id", "Invalid tenant ID format", logger)
}

// ParseDatasourceID extracts and validates the datasource ID from the request path.
// Expects path parameter: id
func ParseDatasourceID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "id", "invalid_datasource_id", "Invalid datasource ID format", logger)
}

// ParseFileID extracts and validates the file ID from the request path.
// Expects path parameter: fid
func ParseFileID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "fid", "invalid_file_id", "Invalid file ID format", logger)
}

// ParseTenantAndDatasourceIDs extracts and validates both tenant and datasource IDs.
// Returns both UUIDs and true on success, or uuid.Nil values and false on error.
func ParseTenantAndDatasourceIDs(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := ParseTenantID(w, r, logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	datasourceID, ok := ParseDatasourceID(w, r, logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	return tenantID, datasourceID, true
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/models"
	"github.com/ekaya-inc/ekaya-query/pkg/services"
)

// uploadFormMemory is how much of a multipart upload is buffered in memory.
const uploadFormMemory = 8 << 20

// ListFilesResponse wraps the array of file assets.
type ListFilesResponse struct {
	Files []*models.FileAsset `json:"files"`
}

// FilesHandler manages the uploaded files workspace sources read.
type FilesHandler struct {
	fileService services.FileService
	logger      *zap.Logger
}

// NewFilesHandler creates a new files handler.
func NewFilesHandler(fileService services.FileService, logger *zap.Logger) *FilesHandler {
	return &FilesHandler{fileService: fileService, logger: logger}
}

// RegisterRoutes registers the files handler's routes on the given mux.
func (h *FilesHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	base := "/api/tenants/{tenant_id}/files"
	mux.HandleFunc("GET "+base, tenantMiddleware(h.List))
	mux.HandleFunc("POST "+base, tenantMiddleware(h.Upload))
	mux.HandleFunc("GET "+base+"/{fid}/schema", tenantMiddleware(h.Schema))
	mux.HandleFunc("DELETE "+base+"/{fid}", tenantMiddleware(h.Delete))
}

// List handles GET /api/tenants/{tenant_id}/files
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := ParseTenantID(w, r, h.logger)
	if !ok {
		return
	}
	assets, err := h.fileService.List(r.Context(), tenantID)
	if err != nil {
		WriteServiceError(w, err, h.logger, "Failed to list files", zap.String("tenant_id", tenantID.String()))
		return
	}
	if assets == nil {
		assets = []*models.FileAsset{}
	}
	h.writeOK(w, http.StatusOK, ListFilesResponse{Files: assets})
}

// Upload handles POST /api/tenants/{tenant_id}/files as multipart form field "file".
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := ParseTenantID(w, r, h.logger)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(uploadFormMemory); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Expected a multipart upload"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_file", "Form field \"file\" is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	defer file.Close()

	asset, err := h.fileService.Upload(r.Context(), tenantID, header.Filename, file)
	if err != nil {
		WriteServiceError(w, err, h.logger, "Failed to store file", zap.String("tenant_id", tenantID.String()))
		return
	}
	h.writeOK(w, http.StatusCreated, asset)
}

// Schema handles GET /api/tenants/{tenant_id}/files/{fid}/schema
func (h *FilesHandler) Schema(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := ParseTenantID(w, r, h.logger)
	if !ok {
		return
	}
	fileID, ok := ParseFileID(w, r, h.logger)
	if !ok {
		return
	}
	asset, err := h.fileService.Describe(r.Context(), tenantID, fileID)
	if err != nil {
		WriteServiceError(w, err, h.logger, "Failed to describe file", zap.String("file_id", fileID.String()))
		return
	}
	h.writeOK(w, http.StatusOK, asset)
}

// Delete handles DELETE /api/tenants/{tenant_id}/files/{fid}
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := ParseTenantID(w, r, h.logger)
	if !ok {
		return
	}
	fileID, ok := ParseFileID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.fileService.Delete(r.Context(), tenantID, fileID); err != nil {
		WriteServiceError(w, err, h.logger, "Failed to delete file", zap.String("file_id", fileID.String()))
		return
	}
	h.writeOK(w, http.StatusOK, map[string]string{"file_id": fileID.String()})
}

func (h *FilesHandler) writeOK(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

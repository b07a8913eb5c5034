package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileFormat is the declared format of an uploaded file asset.
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatXLSX    FileFormat = "xlsx"
	FormatJSON    FileFormat = "json"
)

// ParseFileFormat accepts a format name or a file extension.
func ParseFileFormat(s string) (FileFormat, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "csv", "tsv", "txt":
		return FormatCSV, nil
	case "parquet", "pq":
		return FormatParquet, nil
	case "xlsx", "xlsm", "spreadsheet":
		return FormatXLSX, nil
	case "json", "ndjson", "jsonl":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported file format %q", s)
}

// FileAsset is the metadata of an uploaded file, owned by the file storage collaborator.
type FileAsset struct {
	ID          uuid.UUID    `json:"id"`
	TenantID    uuid.UUID    `json:"tenant_id"`
	Name        string       `json:"name"`
	StoragePath string       `json:"storage_path"`
	Format      FileFormat   `json:"format"`
	SizeBytes   int64        `json:"size_bytes"`
	Checksum    string       `json:"checksum,omitempty"`
	Schema      []ColumnInfo `json:"schema,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

package models

// ColumnInfo is a column name with its database type name.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableInfo is a table with its columns. Columns is empty (not nil) when they could not be read.
type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// SchemaInfo groups tables under a schema name. Name may be empty for dialects without schemas.
type SchemaInfo struct {
	Name   string      `json:"name"`
	Tables []TableInfo `json:"tables"`
}

// SchemaCatalog is the introspection result for one source.
type SchemaCatalog struct {
	Schemas []SchemaInfo `json:"schemas"`
}

// Pseudo-schema names used for workspace sources.
const (
	WorkspaceFilesSchema = "files"
	WorkspaceDBSchema    = "db"
	APISchema            = "api"
)

// TableCount returns the number of tables across all schemas.
func (c *SchemaCatalog) TableCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, s := range c.Schemas {
		n += len(s.Tables)
	}
	return n
}

// Schema returns the schema with the given name, or nil.
func (c *SchemaCatalog) Schema(name string) *SchemaInfo {
	if c == nil {
		return nil
	}
	for i := range c.Schemas {
		if c.Schemas[i].Name == name {
			return &c.Schemas[i]
		}
	}
	return nil
}

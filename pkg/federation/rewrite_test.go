package federation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
)

func TestRewriteSQL(t *testing.T) {
	catalog := map[string]map[string]string{
		"files": {"sales": "sales", "region_map": "Region_Map"},
		"db":    {"orders": "db_orders"},
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "files prefix",
			in:   "SELECT * FROM files.sales",
			want: `SELECT * FROM "sales"`,
		},
		{
			name: "db prefix and join",
			in:   "SELECT s.region FROM files.sales s JOIN db.orders o ON o.region = s.region",
			want: `SELECT s.region FROM "sales" s JOIN "db_orders" o ON o.region = s.region`,
		},
		{
			name: "case insensitive",
			in:   "select * from FILES.Region_Map",
			want: `select * from "Region_Map"`,
		},
		{
			name: "quoted parts",
			in:   `SELECT * FROM "db"."orders"`,
			want: `SELECT * FROM "db_orders"`,
		},
		{
			name: "literal untouched",
			in:   "SELECT 'files.sales' AS label FROM files.sales",
			want: `SELECT 'files.sales' AS label FROM "sales"`,
		},
		{
			name: "comment untouched",
			in:   "SELECT 1 -- from db.orders\nFROM db.orders",
			want: "SELECT 1 -- from db.orders\nFROM \"db_orders\"",
		},
		{
			name: "qualified column is not a pseudo schema",
			in:   "SELECT x.files.total FROM t x",
			want: "SELECT x.files.total FROM t x",
		},
		{
			name: "bare registered names pass through",
			in:   "SELECT * FROM db_orders",
			want: "SELECT * FROM db_orders",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RewriteSQL(tt.in, catalog)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRewriteSQL_UnknownTable(t *testing.T) {
	catalog := map[string]map[string]string{
		"files": {"sales": "sales"},
		"db":    {},
	}
	_, err := RewriteSQL("SELECT * FROM files.missing", catalog)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrQueryFailed)
	assert.Contains(t, err.Error(), "files.sales")

	_, err = RewriteSQL("SELECT * FROM db.orders", catalog)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none")
}

func TestSanitizeAlias(t *testing.T) {
	tests := map[string]string{
		"sales":          "sales",
		"Sales 2024":     "Sales_2024",
		"2024_sales":     "t_2024_sales",
		`x"; DROP TABLE`: "x___DROP_TABLE",
		"  ":             "",
		"---":            "",
		"données":        "donn_es",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeAlias(in), in)
	}
}

package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
)

func TestNamedParameters(t *testing.T) {
	got := NamedParameters("SELECT * FROM t WHERE a = :a AND b::text = :b OR c = :a AND d = ':d' -- :e")
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestBindNamed_Styles(t *testing.T) {
	const q = "SELECT * FROM t WHERE a = :a AND b = :b OR a2 = :a"
	values := map[string]any{"a": 1, "b": "x", "unused": true}

	tests := []struct {
		style PlaceholderStyle
		sql   string
		args  []any
	}{
		{PlaceholderDollar, "SELECT * FROM t WHERE a = $1 AND b = $2 OR a2 = $1", []any{1, "x"}},
		{PlaceholderAtP, "SELECT * FROM t WHERE a = @p1 AND b = @p2 OR a2 = @p1", []any{1, "x"}},
		{PlaceholderQuestion, "SELECT * FROM t WHERE a = ? AND b = ? OR a2 = ?", []any{1, "x", 1}},
		{PlaceholderColon, "SELECT * FROM t WHERE a = :1 AND b = :2 OR a2 = :3", []any{1, "x", 1}},
	}

	for _, tt := range tests {
		t.Run(tt.style.String(), func(t *testing.T) {
			sql, args, err := BindNamed(q, values, tt.style)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestBindNamed_LeavesLiteralsAndCasts(t *testing.T) {
	sql, args, err := BindNamed("SELECT ':a', x::int /* :a */ FROM t WHERE y = :a", map[string]any{"a": 7}, PlaceholderDollar)
	require.NoError(t, err)
	assert.Equal(t, "SELECT ':a', x::int /* :a */ FROM t WHERE y = $1", sql)
	assert.Equal(t, []any{7}, args)
}

func TestBindNamed_MissingParameter(t *testing.T) {
	_, _, err := BindNamed("SELECT * FROM t WHERE a = :a", map[string]any{}, PlaceholderDollar)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMissingParameter)
	assert.Contains(t, err.Error(), ":a")
}

func TestBindNamed_NoParams(t *testing.T) {
	sql, args, err := BindNamed("SELECT 1", nil, PlaceholderQuestion)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", sql)
	assert.Empty(t, args)
}

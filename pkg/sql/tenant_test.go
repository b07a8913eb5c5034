package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasTenantPredicate(t *testing.T) {
	tests := []struct {
		name   string
		sql    string
		column string
		want   bool
	}{
		{"simple where", "SELECT * FROM orders WHERE account_id = :tenant_id", "account_id", true},
		{"qualified column", "SELECT * FROM orders o WHERE o.account_id = :tenant_id", "account_id", true},
		{"quoted column", `SELECT * FROM orders WHERE "account_id" = :tenant_id`, "account_id", true},
		{"reversed", "SELECT * FROM orders o WHERE :tenant_id = o.account_id", "account_id", true},
		{"reversed unqualified", "SELECT * FROM orders WHERE :tenant_id = account_id", "account_id", true},
		{"after and", "SELECT * FROM orders WHERE status = 'open' AND account_id = :tenant_id", "account_id", true},
		{"join on", "SELECT * FROM a JOIN b ON b.id = a.id AND b.account_id = :tenant_id", "account_id", true},
		{"having", "SELECT account_id, count(*) FROM t GROUP BY account_id HAVING account_id = :tenant_id", "account_id", true},
		{"in list", "SELECT * FROM t WHERE account_id IN (:tenant_id)", "account_id", true},
		{"any", "SELECT * FROM t WHERE account_id = ANY(:tenant_id)", "account_id", true},
		{"subquery", "SELECT * FROM (SELECT * FROM t WHERE account_id = :tenant_id) s", "account_id", true},
		{"case insensitive column", "SELECT * FROM t WHERE ACCOUNT_ID = :tenant_id", "account_id", true},
		{"or nested in and", "SELECT * FROM t WHERE account_id = :tenant_id AND (status = 'a' OR status = 'b')", "account_id", true},
		{"or outside derived table", "SELECT * FROM (SELECT * FROM t WHERE account_id = :tenant_id) s WHERE s.a = 1 OR s.b = 2", "account_id", true},
		{"subquery predicate", "SELECT * FROM orders o WHERE o.id IN (SELECT id FROM orders WHERE account_id = :tenant_id)", "account_id", true},
		{"or in later clause", "SELECT * FROM a JOIN b ON b.account_id = :tenant_id WHERE a.x = 1 OR a.y = 2", "account_id", true},
		{"any column when unset", "SELECT * FROM t WHERE owner = :tenant_id", "", true},

		{"missing", "SELECT * FROM orders", "account_id", false},
		{"in comment", "SELECT * FROM orders -- WHERE account_id = :tenant_id", "account_id", false},
		{"in block comment", "SELECT * FROM orders /* account_id = :tenant_id */", "account_id", false},
		{"in string literal", "SELECT * FROM orders WHERE note = 'account_id = :tenant_id'", "account_id", false},
		{"select list", "SELECT :tenant_id AS t FROM orders", "account_id", false},
		{"other column", "SELECT * FROM orders WHERE region = :tenant_id", "account_id", false},
		{"tautology", "SELECT * FROM orders WHERE :tenant_id = :tenant_id", "account_id", false},
		{"not equal", "SELECT * FROM orders WHERE account_id <> :tenant_id", "account_id", false},
		{"wider in list", "SELECT * FROM orders WHERE account_id IN (:tenant_id, 'x')", "account_id", false},
		{"similar name", "SELECT * FROM orders WHERE account_id = :tenant_ids", "account_id", false},
		{"order by", "SELECT * FROM orders ORDER BY account_id = :tenant_id", "account_id", false},
		{"or tautology", "SELECT * FROM orders WHERE account_id = :tenant_id OR 1=1", "account_id", false},
		{"or before", "SELECT * FROM orders WHERE true OR account_id = :tenant_id", "account_id", false},
		{"or inside group", "SELECT * FROM orders WHERE (account_id = :tenant_id OR status = 'x')", "account_id", false},
		{"grouped then or", "SELECT * FROM orders WHERE (account_id = :tenant_id) OR status = 'x'", "account_id", false},
		{"subquery predicate or", "SELECT * FROM orders o WHERE o.id IN (SELECT id FROM orders WHERE account_id = :tenant_id) OR TRUE", "account_id", false},
		{"on clause or", "SELECT * FROM a JOIN b ON b.account_id = :tenant_id OR b.id = a.id", "account_id", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasTenantPredicate(tt.sql, tt.column))
		})
	}
}

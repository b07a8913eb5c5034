package federation

import (
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	sqlutil "github.com/ekaya-inc/ekaya-query/pkg/sql"
)

// RewriteSQL retargets <schema>.<name> references to registered table names.
// catalog maps a pseudo-schema (files, db, api) to name key -> registered name.
// References inside string literals and comments are left alone; a reference to a
// pseudo-schema with an unknown name is an error.
func RewriteSQL(sqlText string, catalog map[string]map[string]string) (string, error) {
	tokens := sqlutil.Tokenize(sqlText)
	var b strings.Builder
	b.Grow(len(sqlText))

	prevSignificant := sqlutil.Token{}
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if schema, names, ok := pseudoSchema(t, catalog); ok &&
			!prevSignificant.IsPunct(".") &&
			i+2 < len(tokens) &&
			tokens[i+1].IsPunct(".") &&
			(tokens[i+2].Kind == sqlutil.TokenWord || tokens[i+2].Kind == sqlutil.TokenQuotedIdent) {

			ref := tokens[i+2].Identifier()
			registered, found := names[aliasKey(SanitizeAlias(ref))]
			if !found {
				return "", apperrors.NewQueryError(apperrors.ErrQueryFailed,
					"unknown table %s.%s (available: %s)", schema, ref, available(schema, names))
			}
			b.WriteString(quoteIdent(registered))
			prevSignificant = tokens[i+2]
			i += 2
			continue
		}

		b.WriteString(t.Text)
		if t.Significant() {
			prevSignificant = t
		}
	}
	return b.String(), nil
}

func pseudoSchema(t sqlutil.Token, catalog map[string]map[string]string) (string, map[string]string, bool) {
	if t.Kind != sqlutil.TokenWord && t.Kind != sqlutil.TokenQuotedIdent {
		return "", nil, false
	}
	schema := strings.ToLower(t.Identifier())
	names, ok := catalog[schema]
	return schema, names, ok
}

func available(schema string, names map[string]string) string {
	if len(names) == 0 {
		return "none"
	}
	refs := make([]string, 0, len(names))
	for key := range names {
		refs = append(refs, schema+"."+key)
	}
	sort.Strings(refs)
	return strings.Join(refs, ", ")
}

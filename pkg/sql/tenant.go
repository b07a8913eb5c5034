package sql

import (
	"strings"
)

// TenantParam is the bind parameter that carries the caller's tenant id.
const TenantParam = "tenant_id"

// predicateClauses open a boolean predicate context.
var predicateClauses = map[string]bool{
	"where":   true,
	"on":      true,
	"having":  true,
	"qualify": true,
}

// clauseKeywords close the current clause.
var clauseKeywords = map[string]bool{
	"select": true, "from": true, "join": true, "group": true, "order": true,
	"limit": true, "offset": true, "fetch": true, "union": true, "except": true,
	"intersect": true, "window": true, "returning": true, "values": true,
	"set": true, "using": true, "into": true,
}

// HasTenantPredicate reports whether the statement constrains column by the
// :tenant_id bind marker inside a WHERE, ON, HAVING or QUALIFY predicate.
//
// Accepted shapes, with column optionally qualified or quoted:
//
//	column = :tenant_id
//	:tenant_id = column
//	column IN (:tenant_id)
//	column = ANY(:tenant_id)
//
// Markers inside comments and string literals do not count, nor do markers compared
// to anything other than the configured column. A comparison joined by OR to another
// condition, at its own level or in an enclosing predicate, does not count either.
// An empty column accepts any column.
func HasTenantPredicate(sqlQuery, column string) bool {
	p := scanPredicates(SignificantTokens(sqlQuery))
	for i, t := range p.tokens {
		if t.Kind != TokenParam || t.ParamName() != TenantParam {
			continue
		}
		if !predicateClauses[p.clause[i]] {
			continue
		}
		if tenantComparison(p.tokens, i, column) && !p.disjoined(i) {
			return true
		}
	}
	return false
}

// predicateScan records, for each token, its parenthesis depth, the "(" enclosing it,
// and the clause it belongs to at that depth.
type predicateScan struct {
	tokens []Token
	depth  []int
	parent []int
	clause []string
	start  []int
}

func scanPredicates(tokens []Token) *predicateScan {
	type scope struct {
		clause string
		start  int
	}
	n := len(tokens)
	p := &predicateScan{
		tokens: tokens,
		depth:  make([]int, n),
		parent: make([]int, n),
		clause: make([]string, n),
		start:  make([]int, n),
	}
	stack := []scope{{}}
	opens := []int{-1}
	for i, t := range tokens {
		if t.IsPunct(")") && len(stack) > 1 {
			stack = stack[:len(stack)-1]
			opens = opens[:len(opens)-1]
		}
		top := len(stack) - 1
		if t.Kind == TokenWord && isClauseKeyword(t.Text) {
			stack[top].clause = strings.ToLower(t.Text)
			stack[top].start = i
		}
		p.depth[i] = top
		p.parent[i] = opens[len(opens)-1]
		p.clause[i] = stack[top].clause
		p.start[i] = stack[top].start
		if t.IsPunct("(") {
			// a parenthesized group continues the enclosing clause until a keyword of its own
			stack = append(stack, scope{clause: stack[top].clause, start: i + 1})
			opens = append(opens, i)
		}
	}
	return p
}

// disjoined reports whether the predicate holding token i is OR'ed with another condition,
// walking out through enclosing groups as long as they sit inside a predicate.
// Groups in FROM or the select list end the walk.
func (p *predicateScan) disjoined(i int) bool {
	for at := i; at >= 0; at = p.parent[at] {
		if !predicateClauses[p.clause[at]] {
			return false
		}
		d, from := p.depth[at], p.start[at]
		for j := from; j < len(p.tokens); j++ {
			if p.depth[j] < d {
				break
			}
			if p.depth[j] != d {
				continue
			}
			t := p.tokens[j]
			if j > from && t.Kind == TokenWord && isClauseKeyword(t.Text) {
				break
			}
			if t.IsWord("or") {
				return true
			}
		}
	}
	return false
}

func isClauseKeyword(word string) bool {
	kw := strings.ToLower(word)
	return predicateClauses[kw] || clauseKeywords[kw]
}

func tenantComparison(tokens []Token, i int, column string) bool {
	at := func(j int) Token {
		if j < 0 || j >= len(tokens) {
			return Token{}
		}
		return tokens[j]
	}

	// column = :tenant_id
	if at(i-1).IsPunct("=") && columnMatches(at(i-2), column) {
		return true
	}
	// :tenant_id = column
	if at(i+1).IsPunct("=") && columnMatches(at(i+2), column) && !at(i+3).IsPunct(".") {
		return true
	}
	// :tenant_id = t.column
	if at(i+1).IsPunct("=") && at(i+3).IsPunct(".") && columnMatches(at(i+4), column) {
		return true
	}
	if at(i-1).IsPunct("(") && at(i+1).IsPunct(")") {
		// column IN (:tenant_id)
		if at(i-2).IsWord("in") && columnMatches(at(i-3), column) {
			return true
		}
		// column = ANY(:tenant_id)
		if at(i-2).IsWord("any") && at(i-3).IsPunct("=") && columnMatches(at(i-4), column) {
			return true
		}
	}
	return false
}

func columnMatches(t Token, column string) bool {
	if t.Kind != TokenWord && t.Kind != TokenQuotedIdent {
		return false
	}
	name := t.Identifier()
	if column == "" {
		return !isReservedOperand(name)
	}
	return strings.EqualFold(name, column)
}

func isReservedOperand(name string) bool {
	switch strings.ToLower(name) {
	case "null", "true", "false", "and", "or", "not", "where", "on", "having":
		return true
	}
	return false
}

// Package sqlscan finds the tables a SQL query references. It parses the
// clauses that name relations, skips the expressions between them and
// rejects any query it cannot place, so a query it accepts has reported
// every relation it reads.
package sqlscan

import (
	"fmt"
	"sort"
	"strings"
)

// Ref is a table referenced by a query.
type Ref struct {
	Schema string // empty when unqualified; catalog.schema when both are given
	Name   string
	Pos    Position
}

// String returns the qualified name.
func (r Ref) String() string {
	if r.Schema == "" {
		return r.Name
	}
	return r.Schema + "." + r.Name
}

// FROM clause parsing: table references, derived tables, lateral joins, JOINs.

// parseFromClause parses the FROM clause. It must end where a clause or an
// enclosing group does; a table modifier this parser does not know could
// hide a further table reference.
func (p *Parser) parseFromClause() {
	p.parseTableRef()
	for !p.failed() && p.parseJoin() {
	}
	if !p.failed() && !endsJoinCondition[p.token.Type] {
		p.addError(fmt.Sprintf("unexpected %s after table reference", describe(p.token)))
	}
}

// parseTableRef parses a table reference.
func (p *Parser) parseTableRef() {
	p.match(TOKEN_LATERAL)
	if p.dialect.OnlyModifier && isWord(p.token, "only") && (p.peek.Type == TOKEN_IDENT || p.peek.Type == TOKEN_LPAREN) {
		p.nextToken()
	}

	switch {
	case p.check(TOKEN_LPAREN):
		p.nextToken()
		if p.startsQuery() && !p.check(TOKEN_LPAREN) {
			// derived table
			p.parseStatement()
		} else {
			// parenthesized join, e.g. (a CROSS JOIN b) or ((a))
			p.parseFromClause()
		}
		p.expect(TOKEN_RPAREN)
	case p.check(TOKEN_IDENT), p.check(TOKEN_STRING):
		p.parseTableName()
	default:
		p.addError(fmt.Sprintf("expected table reference, found %s", describe(p.token)))
		return
	}
	p.parseAlias()
}

// parseTableName parses a table name with optional schema/catalog. A string
// is a name: engines read FROM 'x' as a table or a file. A table function
// is reported under its name and its arguments are searched for subqueries.
func (p *Parser) parseTableName() {
	if !p.check(TOKEN_IDENT) && !p.check(TOKEN_STRING) {
		p.addError(fmt.Sprintf("expected table name, found %s", describe(p.token)))
		return
	}
	ref := Ref{Pos: p.token.Pos}
	parts := []string{p.token.Literal}
	p.nextToken()

	for p.match(TOKEN_DOT) {
		if !p.check(TOKEN_IDENT) && !p.check(TOKEN_STRING) {
			p.addError(fmt.Sprintf("expected name after \".\", found %s", describe(p.token)))
			return
		}
		parts = append(parts, p.token.Literal)
		p.nextToken()
	}
	ref.Name = parts[len(parts)-1]
	ref.Schema = strings.Join(parts[:len(parts)-1], ".")

	if ref.Schema != "" || !p.isCTE(ref.Name) {
		p.refs = append(p.refs, ref)
	}

	if p.check(TOKEN_LPAREN) {
		p.parseGroup()
	}
}

// parseAlias parses an optional alias with its column list.
func (p *Parser) parseAlias() {
	switch {
	case p.match(TOKEN_AS):
		if !p.check(TOKEN_IDENT) && !p.check(TOKEN_STRING) {
			p.addError(fmt.Sprintf("expected alias, found %s", describe(p.token)))
			return
		}
		p.nextToken()
	case p.check(TOKEN_IDENT) && !p.startsJoin():
		p.nextToken()
	}
	if p.check(TOKEN_LPAREN) {
		p.parseGroup()
	}
}

// joinKeywords may open a join.
var joinKeywords = map[TokenType]bool{
	TOKEN_NATURAL: true,
	TOKEN_INNER:   true,
	TOKEN_LEFT:    true,
	TOKEN_RIGHT:   true,
	TOKEN_FULL:    true,
	TOKEN_OUTER:   true,
	TOKEN_CROSS:   true,
}

// joinWords are join modifiers some engines accept that are not keywords here.
var joinWords = map[string]bool{
	"semi":       true,
	"anti":       true,
	"asof":       true,
	"positional": true,
}

func isJoinWord(tok Token) bool {
	return tok.Type == TOKEN_IDENT && !tok.Quoted && joinWords[strings.ToLower(tok.Literal)]
}

// startsJoin reports whether the current token opens a join.
func (p *Parser) startsJoin() bool {
	switch {
	case p.check(TOKEN_JOIN):
		return true
	case joinKeywords[p.token.Type]:
		// LEFT(x, 1) and RIGHT(x, 1) are functions
		return p.peek.Type != TOKEN_LPAREN
	case isJoinWord(p.token):
		return p.peek.Type == TOKEN_JOIN || joinKeywords[p.peek.Type] || isJoinWord(p.peek)
	}
	return false
}

// parseJoin parses one join and reports whether there was one.
func (p *Parser) parseJoin() bool {
	if p.match(TOKEN_COMMA) {
		p.parseTableRef()
		return true
	}
	if !p.startsJoin() {
		return false
	}
	for joinKeywords[p.token.Type] || isJoinWord(p.token) {
		p.nextToken()
	}
	if !p.expect(TOKEN_JOIN) {
		return false
	}
	p.parseTableRef()

	switch {
	case p.match(TOKEN_ON):
		p.parseJoinCondition()
	case p.match(TOKEN_USING):
		if p.check(TOKEN_LPAREN) {
			p.parseGroup()
		}
	}
	return !p.failed()
}

// parseJoinCondition skips an ON expression, parsing the subqueries in it.
func (p *Parser) parseJoinCondition() {
	for !p.failed() {
		switch {
		case p.check(TOKEN_LPAREN):
			p.parseGroup()
		case p.check(TOKEN_COMMA), p.startsJoin(), endsJoinCondition[p.token.Type]:
			return
		default:
			p.nextToken()
		}
	}
}

var endsJoinCondition = map[TokenType]bool{
	TOKEN_EOF:       true,
	TOKEN_SEMICOLON: true,
	TOKEN_RPAREN:    true,
	TOKEN_WHERE:     true,
	TOKEN_GROUP:     true,
	TOKEN_HAVING:    true,
	TOKEN_QUALIFY:   true,
	TOKEN_WINDOW:    true,
	TOKEN_ORDER:     true,
	TOKEN_LIMIT:     true,
	TOKEN_OFFSET:    true,
	TOKEN_UNION:     true,
	TOKEN_INTERSECT: true,
	TOKEN_EXCEPT:    true,
	TOKEN_SELECT:    true,
	TOKEN_FROM:      true,
}

// Tables returns the tables sql reads from or writes to under the rules of
// d, in order of appearance. Names introduced by WITH are not tables and are
// left out; table functions such as read_csv('x') are reported under the
// function name. A query Tables cannot parse is an error.
func Tables(sql string, d *Dialect) ([]Ref, error) {
	refs, err := ParseRefs(sql, d)
	if err != nil {
		return nil, err
	}
	if refs == nil {
		refs = []Ref{}
	}
	return refs, nil
}

// Unauthorized returns the distinct referenced tables of sql that are not in
// allowed, compared case-insensitively. An unqualified name, or one
// qualified by the dialect's default schema, matches an allowed name; any
// other qualified name must be allowed as written.
//
// dialect names the engine the query runs on. When it is not a known
// dialect the query is checked under every dialect and the results merged.
// A query that does not parse is an error and must be rejected.
func Unauthorized(sql string, allowed []string, dialect string) ([]string, error) {
	ok := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		ok[strings.ToLower(a)] = true
	}

	checks := []*Dialect{ANSI, SQLite, Postgres, DuckDB}
	if d, found := LookupDialect(dialect); found {
		checks = []*Dialect{d}
	}

	seen := make(map[string]bool)
	var out []string
	for _, d := range checks {
		refs, err := Tables(sql, d)
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			if authorized(r, ok, d) || seen[r.String()] {
				continue
			}
			seen[r.String()] = true
			out = append(out, r.String())
		}
	}
	sort.Strings(out)
	return out, nil
}

func authorized(r Ref, ok map[string]bool, d *Dialect) bool {
	if ok[strings.ToLower(r.String())] {
		return true
	}
	return (r.Schema == "" || d.isDefaultSchema(r.Schema)) && ok[strings.ToLower(r.Name)]
}

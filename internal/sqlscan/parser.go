package sqlscan

import (
	"fmt"
	"strings"
)

// Table reference parsing. Only the structure that decides which relations a
// query reads is parsed; expressions are skipped except for the subqueries
// nested in them.
//
// Grammar:
//
//	script        → statement (";" statement)*
//	statement     → [WITH cte_list] (query | insert | update | delete)
//	cte_list      → cte ("," cte)*
//	cte           → identifier ["(" columns ")"] AS [[NOT] MATERIALIZED] "(" statement ")"
//	query         → query_core ((UNION|INTERSECT|EXCEPT) [ALL|DISTINCT|BY NAME] query_core)*
//	query_core    → SELECT ... [FROM from_clause] ... | FROM from_clause [SELECT ...]
//	              | TABLE table_name | "(" statement ")"
//	from_clause   → table_ref (join)*
//	table_ref     → [LATERAL] (table_name ["(" args ")"] | "(" statement ")" | "(" from_clause ")") [alias]
//	table_name    → name ("." name)*
//	name          → identifier | quoted identifier | string
//	join          → "," table_ref | [NATURAL] [join_type] JOIN table_ref [ON expr | USING "(" columns ")"]
//
// Anything the grammar cannot place is an error, so a query that parses has
// had every relation it reads reported.

// ParseError represents a parsing error with position information.
type ParseError struct {
	Pos     Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// Parser collects table references from SQL.
type Parser struct {
	lexer   *Lexer
	dialect *Dialect
	token   Token // current token
	peek    Token // lookahead token
	prev    [2]Token
	scopes  []map[string]bool // CTE names visible at each nesting level
	refs    []Ref
	errors  []error
}

// NewParser creates a new parser for sql using the rules of d.
func NewParser(sql string, d *Dialect) *Parser {
	if d == nil {
		d = ANSI
	}
	p := &Parser{lexer: NewLexerWithDialect(sql, d), dialect: d}
	p.nextToken()
	p.nextToken()
	return p
}

// ParseRefs returns the relations sql reads or writes, in order of
// appearance. Names bound by WITH are resolved and left out.
func ParseRefs(sql string, d *Dialect) ([]Ref, error) {
	p := NewParser(sql, d)
	p.parseScript()
	if len(p.errors) > 0 {
		return nil, p.errors[0]
	}
	return p.refs, nil
}

// ---------- Token Helpers ----------

func (p *Parser) nextToken() {
	p.prev[1] = p.prev[0]
	p.prev[0] = p.token
	p.token = p.peek
	p.peek = p.lexer.NextToken()
	if p.token.Type == TOKEN_ILLEGAL {
		p.addError(p.token.Literal)
	}
}

func (p *Parser) check(t TokenType) bool {
	return p.token.Type == t
}

func (p *Parser) match(t TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	return false
}

func (p *Parser) expect(t TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf("unexpected %s, expected %s", describe(p.token), t))
	return false
}

func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, &ParseError{Pos: p.token.Pos, Message: msg})
}

func (p *Parser) failed() bool {
	return len(p.errors) > 0
}

func describe(tok Token) string {
	switch tok.Type {
	case TOKEN_EOF:
		return "end of query"
	case TOKEN_IDENT, TOKEN_STRING, TOKEN_NUMBER, TOKEN_OP:
		return fmt.Sprintf("%q", tok.Literal)
	}
	return tok.Type.String()
}

// ---------- Scopes ----------

func (p *Parser) pushScope() { p.scopes = append(p.scopes, map[string]bool{}) }
func (p *Parser) popScope()  { p.scopes = p.scopes[:len(p.scopes)-1] }

func (p *Parser) bindCTE(name string) {
	p.scopes[len(p.scopes)-1][strings.ToLower(name)] = true
}

func (p *Parser) isCTE(name string) bool {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if p.scopes[i][strings.ToLower(name)] {
			return true
		}
	}
	return false
}

// ---------- Statements ----------

func (p *Parser) parseScript() {
	for !p.failed() {
		for p.check(TOKEN_SEMICOLON) {
			p.nextToken()
		}
		if p.check(TOKEN_EOF) {
			return
		}
		p.parseStatement()
		if !p.check(TOKEN_EOF) && !p.failed() {
			p.expect(TOKEN_SEMICOLON)
		}
	}
}

func (p *Parser) parseStatement() {
	p.pushScope()
	defer p.popScope()

	if p.match(TOKEN_WITH) {
		p.parseWith()
	}
	switch {
	case p.failed():
	case p.startsQuery():
		p.parseQuery()
	case p.check(TOKEN_INSERT):
		p.parseInsert()
	case p.check(TOKEN_UPDATE):
		p.parseUpdate()
	case p.check(TOKEN_DELETE):
		p.parseDelete()
	default:
		p.addError(fmt.Sprintf("unsupported statement starting with %s", describe(p.token)))
	}
}

// startsQuery reports whether the current token can open a query.
func (p *Parser) startsQuery() bool {
	switch p.token.Type {
	case TOKEN_SELECT, TOKEN_FROM, TOKEN_TABLE, TOKEN_WITH, TOKEN_LPAREN:
		return true
	case TOKEN_IDENT:
		return isWord(p.token, "values")
	}
	return false
}

func (p *Parser) parseWith() {
	recursive := p.match(TOKEN_RECURSIVE)
	for !p.failed() {
		if !p.check(TOKEN_IDENT) {
			p.addError(fmt.Sprintf("expected CTE name, found %s", describe(p.token)))
			return
		}
		name := p.token.Literal
		p.nextToken()
		if p.check(TOKEN_LPAREN) {
			p.parseGroup()
		}
		if !p.expect(TOKEN_AS) {
			return
		}
		for p.check(TOKEN_IDENT) && !p.token.Quoted {
			p.nextToken() // [NOT] MATERIALIZED
		}
		// A recursive CTE sees its own name; otherwise the name in its
		// body is the table it shadows.
		if recursive {
			p.bindCTE(name)
		}
		if !p.expect(TOKEN_LPAREN) {
			return
		}
		p.parseStatement()
		p.expect(TOKEN_RPAREN)
		p.bindCTE(name)
		if !p.match(TOKEN_COMMA) {
			return
		}
	}
}

func (p *Parser) parseQuery() {
	p.parseQueryCore()
	for !p.failed() && (p.check(TOKEN_UNION) || p.check(TOKEN_INTERSECT) || p.check(TOKEN_EXCEPT)) {
		p.nextToken()
		for p.check(TOKEN_IDENT) && setQuantifiers[strings.ToLower(p.token.Literal)] && !p.token.Quoted {
			p.nextToken()
		}
		p.parseQueryCore()
	}
}

// setQuantifiers may follow UNION, INTERSECT and EXCEPT.
var setQuantifiers = map[string]bool{"all": true, "distinct": true, "by": true, "name": true}

func (p *Parser) parseQueryCore() {
	switch {
	case p.check(TOKEN_WITH):
		p.parseStatement()
		return
	case p.match(TOKEN_LPAREN):
		p.parseStatement()
		p.expect(TOKEN_RPAREN)
	case p.match(TOKEN_TABLE):
		p.parseTableName()
	case p.match(TOKEN_FROM):
		p.parseFromClause()
	case p.match(TOKEN_SELECT):
	case isWord(p.token, "values"):
		p.nextToken()
	default:
		p.addError(fmt.Sprintf("expected query, found %s", describe(p.token)))
		return
	}
	p.parseClauses()
}

// parseClauses skips the rest of a query or statement at the current
// nesting level, parsing the FROM clauses and subqueries it contains.
func (p *Parser) parseClauses() {
	for !p.failed() {
		switch p.token.Type {
		case TOKEN_EOF, TOKEN_SEMICOLON, TOKEN_RPAREN, TOKEN_UNION, TOKEN_INTERSECT, TOKEN_EXCEPT:
			return
		case TOKEN_FROM:
			if p.isDistinctFrom() {
				p.nextToken()
				continue
			}
			p.nextToken()
			p.parseFromClause()
		case TOKEN_LPAREN:
			p.parseGroup()
		case TOKEN_JOIN:
			p.addError("JOIN outside a FROM clause")
		default:
			p.nextToken()
		}
	}
}

// isDistinctFrom reports whether the current FROM ends IS [NOT] DISTINCT FROM.
func (p *Parser) isDistinctFrom() bool {
	return isWord(p.prev[0], "distinct") && (isWord(p.prev[1], "is") || isWord(p.prev[1], "not"))
}

// isWord reports whether tok is the unquoted word.
func isWord(tok Token, word string) bool {
	return tok.Type == TOKEN_IDENT && !tok.Quoted && strings.EqualFold(tok.Literal, word)
}

// deniedSubqueries open statements some engines accept in parentheses but
// that this parser does not read.
var deniedSubqueries = map[string]bool{
	"summarize": true,
	"describe":  true,
	"show":      true,
	"pivot":     true,
	"unpivot":   true,
	"explain":   true,
	"call":      true,
	"pragma":    true,
}

// parseGroup parses a parenthesized group: a subquery, or an expression
// whose nested groups are searched for subqueries.
func (p *Parser) parseGroup() {
	p.expect(TOKEN_LPAREN)
	if p.startsQuery() && !p.check(TOKEN_LPAREN) {
		p.parseStatement()
		p.expect(TOKEN_RPAREN)
		return
	}
	if p.check(TOKEN_IDENT) && !p.token.Quoted && deniedSubqueries[strings.ToLower(p.token.Literal)] {
		p.addError(fmt.Sprintf("unsupported subquery %s", describe(p.token)))
		return
	}
	for !p.failed() && !p.check(TOKEN_RPAREN) {
		switch p.token.Type {
		case TOKEN_EOF, TOKEN_SEMICOLON:
			p.addError("unterminated parenthesis")
			return
		case TOKEN_LPAREN:
			p.parseGroup()
		default:
			p.nextToken()
		}
	}
	p.expect(TOKEN_RPAREN)
}

func (p *Parser) parseInsert() {
	p.expect(TOKEN_INSERT)
	for p.check(TOKEN_IDENT) && !p.token.Quoted {
		p.nextToken() // OR REPLACE, OR IGNORE
	}
	if !p.expect(TOKEN_INTO) {
		return
	}
	p.parseTableName()
	p.parseAlias()
	if p.startsQuery() && !p.check(TOKEN_LPAREN) {
		p.parseStatement()
	}
	p.parseClauses()
}

func (p *Parser) parseUpdate() {
	p.expect(TOKEN_UPDATE)
	p.parseTableName()
	p.parseAlias()
	p.parseClauses()
}

func (p *Parser) parseDelete() {
	p.expect(TOKEN_DELETE)
	if !p.expect(TOKEN_FROM) {
		return
	}
	p.parseTableName()
	p.parseAlias()
	if p.match(TOKEN_USING) {
		p.parseFromClause()
	}
	p.parseClauses()
}

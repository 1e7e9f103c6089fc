package sqlscan

import (
	"strings"
	"unicode"
)

// Lexer tokenizes SQL input. It knows only enough of the grammar to find
// table references: keywords outside the reference clauses lex as identifiers.
//
// Input whose lexing differs between engines, such as a block comment that
// opens another block comment, lexes as TOKEN_ILLEGAL.
type Lexer struct {
	input   string
	dialect *Dialect
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
	line    int  // current line number (1-based)
	col     int  // current column number (1-based)
	illegal string
}

// NewLexer creates a new Lexer for the given input using ANSI rules.
func NewLexer(input string) *Lexer {
	return NewLexerWithDialect(input, ANSI)
}

// NewLexerWithDialect creates a new Lexer for input using the rules of d.
func NewLexerWithDialect(input string, d *Dialect) *Lexer {
	if d == nil {
		d = ANSI
	}
	l := &Lexer{input: input, dialect: d, line: 1}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++

	if l.ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) currentPos() Position {
	return Position{Line: l.line, Column: l.col, Offset: l.pos}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	pos := l.currentPos()
	l.skipWhitespaceAndComments()
	if l.illegal != "" {
		return l.illegalToken(pos)
	}

	pos = l.currentPos()
	tok := Token{Pos: pos}

	switch l.ch {
	case 0:
		tok.Type = TOKEN_EOF
		return tok
	case '.':
		tok.Type, tok.Literal = TOKEN_DOT, "."
	case ',':
		tok.Type, tok.Literal = TOKEN_COMMA, ","
	case ';':
		tok.Type, tok.Literal = TOKEN_SEMICOLON, ";"
	case '(':
		tok.Type, tok.Literal = TOKEN_LPAREN, "("
	case ')':
		tok.Type, tok.Literal = TOKEN_RPAREN, ")"
	case '\'':
		tok.Type = TOKEN_STRING
		tok.Literal = l.readQuoted('\'', '\'')
		return l.checkIllegal(tok)
	case '"', '`':
		tok.Type = TOKEN_IDENT
		tok.Quoted = true
		tok.Literal = l.readQuoted(l.ch, l.ch)
		return l.checkIllegal(tok)
	case '[':
		if !l.dialect.BracketIdentifiers {
			tok.Type, tok.Literal = TOKEN_OP, "["
			break
		}
		tok.Type = TOKEN_IDENT
		tok.Quoted = true
		tok.Literal = l.readQuoted('[', ']')
		return l.checkIllegal(tok)
	case '$':
		if l.dialect.DollarQuoting {
			if tag, ok := l.dollarTag(); ok {
				tok.Type = TOKEN_STRING
				tok.Literal = l.readDollarQuoted(tag)
				return l.checkIllegal(tok)
			}
		}
		tok.Type, tok.Literal = TOKEN_OP, "$"
	default:
		switch {
		case (l.ch == 'e' || l.ch == 'E') && l.peekChar() == '\'' && l.dialect.EscapeStrings:
			l.readChar()
			tok.Type = TOKEN_STRING
			tok.Literal = l.readEscaped()
			return l.checkIllegal(tok)
		case isLetter(l.ch) || l.ch == '_':
			tok.Literal = l.readIdentifier()
			tok.Type = LookupIdent(strings.ToLower(tok.Literal))
			return tok
		case isDigit(l.ch):
			tok.Type = TOKEN_NUMBER
			tok.Literal = l.readNumber()
			return tok
		case l.ch < 0x80:
			tok.Type, tok.Literal = TOKEN_OP, string(l.ch)
		default:
			tok.Type, tok.Literal = TOKEN_ILLEGAL, "unexpected byte "+string(l.ch)
		}
	}

	l.readChar()
	return tok
}

func (l *Lexer) illegalToken(pos Position) Token {
	return Token{Type: TOKEN_ILLEGAL, Literal: l.illegal, Pos: pos}
}

// checkIllegal replaces tok when reading it hit an error.
func (l *Lexer) checkIllegal(tok Token) Token {
	if l.illegal != "" {
		return l.illegalToken(tok.Pos)
	}
	return tok
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' || l.ch == '\f' || l.ch == '\v' {
			l.readChar()
		}
		if l.ch == '-' && l.peekChar() == '-' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}
		if l.ch == '/' && l.peekChar() == '*' {
			l.skipBlockComment()
			if l.illegal != "" {
				return
			}
			continue
		}
		break
	}
}

// skipBlockComment skips a /* */ comment. Engines disagree on whether block
// comments nest, so a comment that contains "/*" is illegal.
func (l *Lexer) skipBlockComment() {
	l.readChar() // skip '/'
	l.readChar() // skip '*'
	for {
		switch {
		case l.ch == 0:
			l.illegal = "unterminated comment"
			return
		case l.ch == '/' && l.peekChar() == '*':
			l.illegal = "nested comment"
			return
		case l.ch == '*' && l.peekChar() == '/':
			l.readChar()
			l.readChar()
			return
		}
		l.readChar()
	}
}

// readQuoted reads a string or quoted identifier opened by open and closed
// by closing. A doubled closing delimiter is escaped: 'it''s' -> it's.
// Bracket identifiers have no escape.
func (l *Lexer) readQuoted(open, closing byte) string {
	l.readChar() // skip opening quote

	var result strings.Builder
	for {
		if l.ch == 0 {
			l.illegal = "unterminated quoted text"
			return result.String()
		}
		if l.ch == closing {
			if open != closing || l.peekChar() != closing {
				l.readChar() // skip closing quote
				return result.String()
			}
			l.readChar()
		}
		result.WriteByte(l.ch)
		l.readChar()
	}
}

// readEscaped reads an E'' string, where a backslash escapes the next byte.
func (l *Lexer) readEscaped() string {
	l.readChar() // skip opening quote

	var result strings.Builder
	for {
		switch {
		case l.ch == 0:
			l.illegal = "unterminated quoted text"
			return result.String()
		case l.ch == '\\':
			l.readChar()
			if l.ch == 0 {
				continue
			}
		case l.ch == '\'':
			if l.peekChar() != '\'' {
				l.readChar()
				return result.String()
			}
			l.readChar()
		}
		result.WriteByte(l.ch)
		l.readChar()
	}
}

// dollarTag reports whether the input at l.ch opens a dollar-quoted string
// and returns its tag, "" for $$.
func (l *Lexer) dollarTag() (string, bool) {
	i := l.pos + 1
	for i < len(l.input) && (isLetter(l.input[i]) || l.input[i] == '_' || (i > l.pos+1 && isDigit(l.input[i]))) {
		i++
	}
	if i >= len(l.input) || l.input[i] != '$' {
		return "", false
	}
	return l.input[l.pos+1 : i], true
}

func (l *Lexer) readDollarQuoted(tag string) string {
	delim := "$" + tag + "$"
	start := l.pos + len(delim)
	end := strings.Index(l.input[start:], delim)
	if end < 0 {
		l.illegal = "unterminated dollar-quoted text"
		for l.ch != 0 {
			l.readChar()
		}
		return l.input[start:]
	}
	for l.pos < start+end+len(delim) {
		l.readChar()
	}
	return l.input[start : start+end]
}

func (l *Lexer) readIdentifier() string {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' || l.ch == '$' {
		l.readChar()
	}
	return l.input[start:l.pos]
}

func (l *Lexer) readNumber() string {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return l.input[start:l.pos]
}

func isLetter(ch byte) bool {
	return ch < 0x80 && unicode.IsLetter(rune(ch))
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// Tokenize returns all tokens from the input using ANSI rules, ending with
// TOKEN_EOF or the first TOKEN_ILLEGAL.
func Tokenize(input string) []Token {
	return TokenizeWithDialect(input, ANSI)
}

// TokenizeWithDialect is Tokenize using the rules of d.
func TokenizeWithDialect(input string, d *Dialect) []Token {
	l := NewLexerWithDialect(input, d)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TOKEN_EOF || tok.Type == TOKEN_ILLEGAL {
			break
		}
	}
	return tokens
}

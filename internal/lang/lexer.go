package lang

import (
	"strconv"
	"unicode"
	"unicode/utf8"

	"twotoone/internal/ops"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokNL
	tokIdent
	tokNumber
	tokString
	tokOp
	tokColon
	tokSemi
	tokLBrace
	tokRBrace
	tokComma
	tokTilde
	tokHash
)

var tokenNames = [...]string{
	tokEOF:    "end of input",
	tokNL:     "newline",
	tokIdent:  "name",
	tokNumber: "number",
	tokString: "string",
	tokOp:     "operator",
	tokColon:  "':'",
	tokSemi:   "';'",
	tokLBrace: "'{'",
	tokRBrace: "'}'",
	tokComma:  "','",
	tokTilde:  "'~'",
	tokHash:   "'#'",
}

func (k tokenKind) String() string { return tokenNames[k] }

var punctuation = map[rune]tokenKind{
	'\n': tokNL,
	':':  tokColon,
	';':  tokSemi,
	'{':  tokLBrace,
	'}':  tokRBrace,
	',':  tokComma,
	'~':  tokTilde,
	'#':  tokHash,
}

type token struct {
	kind tokenKind
	text string
	num  float64
	line int
	col  int
}

func (t token) describe() string {
	switch t.kind {
	case tokIdent, tokNumber, tokOp:
		return strconv.Quote(t.text)
	default:
		return t.kind.String()
	}
}

type lexer struct {
	src  string
	off  int
	line int
	col  int
	toks []token
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src, line: 1, col: 1}
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		l.toks = append(l.toks, t)
		if t.kind == tokEOF {
			return l.toks, nil
		}
	}
}

func (l *lexer) peekRune(ahead int) rune {
	off := l.off
	for i := 0; i < ahead; i++ {
		if off >= len(l.src) {
			return 0
		}
		_, size := utf8.DecodeRuneInString(l.src[off:])
		off += size
	}
	if off >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[off:])
	return r
}

func (l *lexer) advance() rune {
	r, size := utf8.DecodeRuneInString(l.src[l.off:])
	l.off += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *lexer) next() (token, error) {
	for l.off < len(l.src) {
		r := l.peekRune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\r':
			l.advance()
		case r == '/' && l.peekRune(1) == '/':
			for l.off < len(l.src) && l.peekRune(0) != '\n' {
				l.advance()
			}
		default:
			return l.scan()
		}
	}
	return token{kind: tokEOF, line: l.line, col: l.col}, nil
}

func (l *lexer) scan() (token, error) {
	start := token{line: l.line, col: l.col}
	from := l.off
	r := l.peekRune(0)

	if kind, ok := punctuation[r]; ok {
		l.advance()
		start.kind = kind
		start.text = string(r)
		return start, nil
	}

	switch {
	case r == '_' || unicode.IsLetter(r):
		for r := l.peekRune(0); r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r); r = l.peekRune(0) {
			l.advance()
		}
		start.kind = tokIdent
	case isDigit(r), r == '.' && isDigit(l.peekRune(1)), r == '-' && isDigit(l.peekRune(1)):
		if r == '-' {
			l.advance()
		}
		for r := l.peekRune(0); isDigit(r) || r == '.'; r = l.peekRune(0) {
			l.advance()
		}
		start.kind = tokNumber
		n, err := strconv.ParseFloat(l.src[from:l.off], 64)
		if err != nil {
			return token{}, errAt(start, ErrSyntax, "malformed number %q", l.src[from:l.off])
		}
		start.num = n
	case r == '"':
		l.advance()
		for {
			if l.off >= len(l.src) || l.peekRune(0) == '\n' {
				return token{}, errAt(start, ErrSyntax, "unterminated string")
			}
			c := l.advance()
			if c == '\\' && l.off < len(l.src) {
				l.advance()
				continue
			}
			if c == '"' {
				break
			}
		}
		s, err := strconv.Unquote(l.src[from:l.off])
		if err != nil {
			return token{}, errAt(start, ErrSyntax, "malformed string %s", l.src[from:l.off])
		}
		start.kind = tokString
		start.text = s
		return start, nil
	case ops.IsSymbolChar(r):
		for r := l.peekRune(0); ops.IsSymbolChar(r); r = l.peekRune(0) {
			if r == '/' && l.peekRune(1) == '/' {
				break
			}
			l.advance()
		}
		start.kind = tokOp
	default:
		return token{}, errAt(start, ErrSyntax, "unexpected character %q", r)
	}
	start.text = l.src[from:l.off]
	return start, nil
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

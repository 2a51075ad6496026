package scheme

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokOpen tokenKind = iota
	tokClose
	tokQuote
	tokString
	tokAtom
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(src string) ([]token, error) {
	var toks []token
	in := []rune(src)
	for i := 0; i < len(in); {
		c := in[i]
		switch {
		case c == ';':
			for i < len(in) && in[i] != '\n' {
				i++
			}
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{kind: tokOpen})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokClose})
			i++
		case c == '\'':
			toks = append(toks, token{kind: tokQuote})
			i++
		case c == '"':
			var sb strings.Builder
			i++
			closed := false
			for i < len(in) {
				r := in[i]
				i++
				if r == '"' {
					closed = true
					break
				}
				if r == '\\' {
					if i >= len(in) {
						break
					}
					switch e := in[i]; e {
					case 'n':
						sb.WriteRune('\n')
					case 't':
						sb.WriteRune('\t')
					default:
						sb.WriteRune(e)
					}
					i++
					continue
				}
				sb.WriteRune(r)
			}
			if !closed {
				return nil, fmt.Errorf("%w: unterminated string", ErrIncomplete)
			}
			toks = append(toks, token{kind: tokString, text: sb.String()})
		default:
			start := i
			for i < len(in) && !unicode.IsSpace(in[i]) && !strings.ContainsRune("()'\";", in[i]) {
				i++
			}
			toks = append(toks, token{kind: tokAtom, text: string(in[start:i])})
		}
	}
	return toks, nil
}

// Parse reads every datum in src.
func Parse(src string) ([]Value, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	var out []Value
	for p.pos < len(p.toks) {
		v, err := p.datum()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

type parser struct {
	toks  []token
	pos   int
	depth int
}

func (p *parser) datum() (Value, error) {
	if p.pos >= len(p.toks) {
		return nil, ErrIncomplete
	}
	t := p.toks[p.pos]
	p.pos++
	if t.kind == tokOpen || t.kind == tokQuote {
		if p.depth >= DefaultMaxDepth {
			return nil, fmt.Errorf("%w: input nested deeper than %d", ErrRecursion, DefaultMaxDepth)
		}
		p.depth++
		defer func() { p.depth-- }()
	}
	switch t.kind {
	case tokOpen:
		items := List{}
		for {
			if p.pos >= len(p.toks) {
				return nil, fmt.Errorf("%w: missing ')'", ErrIncomplete)
			}
			if p.toks[p.pos].kind == tokClose {
				p.pos++
				return items, nil
			}
			v, err := p.datum()
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
	case tokClose:
		return nil, fmt.Errorf("%w: unexpected ')'", ErrSyntax)
	case tokQuote:
		v, err := p.datum()
		if err != nil {
			return nil, err
		}
		return List{Symbol("quote"), v}, nil
	case tokString:
		return String(t.text), nil
	default:
		return atom(t.text)
	}
}

func atom(s string) (Value, error) {
	switch s {
	case "#t", "#true":
		return Bool(true), nil
	case "#f", "#false":
		return Bool(false), nil
	}
	if !looksNumeric(s) {
		return Symbol(s), nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(n), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Real(f), nil
	}
	return nil, fmt.Errorf("%w: bad number %q", ErrSyntax, s)
}

// looksNumeric keeps names like "-", "inf" and "nan" symbols.
func looksNumeric(s string) bool {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	if i < len(s) && s[i] == '.' {
		i++
	}
	return i < len(s) && s[i] >= '0' && s[i] <= '9'
}

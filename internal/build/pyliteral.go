package build

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// parsePyLiteral reads the subset of Python literals found in exported
// utterance columns: lists, tuples, dicts, quoted strings, numbers, True,
// False and None. Tuples become lists and dict keys are stringified.
func parsePyLiteral(s string) (any, error) {
	p := &pyParser{src: []rune(s)}
	p.skipSpace()
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected trailing input")
	}
	return v, nil
}

// maxPyDepth bounds container nesting.
const maxPyDepth = 256

type pyParser struct {
	src   []rune
	pos   int
	depth int
}

// enter tracks one more level of container nesting.
func (p *pyParser) enter() error {
	p.depth++
	if p.depth > maxPyDepth {
		return p.errorf("nesting deeper than %d", maxPyDepth)
	}
	return nil
}

func (p *pyParser) errorf(format string, args ...any) error {
	return fmt.Errorf("python literal at offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *pyParser) peek() rune {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *pyParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *pyParser) value() (any, error) {
	switch c := p.peek(); {
	case c == 0:
		return nil, p.errorf("unexpected end of input")
	case c == '[':
		return p.sequence(']')
	case c == '(':
		return p.sequence(')')
	case c == '{':
		return p.dict()
	case c == '\'' || c == '"':
		return p.str()
	case c == '-' || c == '+' || c == '.' || unicode.IsDigit(c):
		return p.number()
	case unicode.IsLetter(c):
		return p.name()
	default:
		return nil, p.errorf("unexpected %q", c)
	}
}

func (p *pyParser) sequence(closer rune) (any, error) {
	defer func() { p.depth-- }()
	if err := p.enter(); err != nil {
		return nil, err
	}
	p.pos++
	items := []any{}
	for {
		p.skipSpace()
		if p.peek() == closer {
			p.pos++
			return items, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case closer:
		default:
			return nil, p.errorf("expected ',' or %q", closer)
		}
	}
}

func (p *pyParser) dict() (any, error) {
	defer func() { p.depth-- }()
	if err := p.enter(); err != nil {
		return nil, err
	}
	p.pos++
	out := map[string]any{}
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			return out, nil
		}
		key, err := p.value()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ':' {
			return nil, p.errorf("expected ':'")
		}
		p.pos++
		p.skipSpace()
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		if s, ok := key.(string); ok {
			out[s] = v
		} else {
			out[fmt.Sprint(key)] = v
		}
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
		default:
			return nil, p.errorf("expected ',' or '}'")
		}
	}
}

func (p *pyParser) str() (any, error) {
	quote := p.src[p.pos]
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		p.pos++
		switch c {
		case quote:
			return sb.String(), nil
		case '\\':
			if p.pos >= len(p.src) {
				return nil, p.errorf("unterminated escape")
			}
			esc := p.src[p.pos]
			p.pos++
			switch esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case 'r':
				sb.WriteRune('\r')
			case 'x', 'u':
				width := 2
				if esc == 'u' {
					width = 4
				}
				if p.pos+width > len(p.src) {
					return nil, p.errorf("short \\%c escape", esc)
				}
				code, err := strconv.ParseUint(string(p.src[p.pos:p.pos+width]), 16, 32)
				if err != nil {
					return nil, p.errorf("bad \\%c escape", esc)
				}
				p.pos += width
				sb.WriteRune(rune(code))
			default:
				sb.WriteRune(esc)
			}
		default:
			sb.WriteRune(c)
		}
	}
	return nil, p.errorf("unterminated string")
}

func (p *pyParser) number() (any, error) {
	start := p.pos
	for p.pos < len(p.src) && strings.ContainsRune("+-.eE0123456789_", p.src[p.pos]) {
		p.pos++
	}
	text := strings.ReplaceAll(string(p.src[start:p.pos]), "_", "")
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		p.pos = start
		return nil, p.errorf("bad number %q", text)
	}
	return f, nil
}

func (p *pyParser) name() (any, error) {
	start := p.pos
	for p.pos < len(p.src) && (unicode.IsLetter(p.src[p.pos]) || unicode.IsDigit(p.src[p.pos])) {
		p.pos++
	}
	switch word := string(p.src[start:p.pos]); word {
	case "True":
		return true, nil
	case "False":
		return false, nil
	case "None":
		return nil, nil
	case "u", "r", "b":
		if q := p.peek(); q == '\'' || q == '"' {
			return p.str()
		}
		fallthrough
	default:
		p.pos = start
		return nil, p.errorf("unknown name %q", word)
	}
}

package engine

import (
	"fmt"
	"strconv"
	"strings"
)

const maxFieldWidth = 1000

// conversion is one parsed %-directive.
type conversion struct {
	raw       string
	flags     string
	width     string
	precision string // includes the leading '.', empty when absent
	verb      byte   // 0 when the directive is cut off by the end of the format
}

// Format renders a printf call. Escapes are expanded in the literal parts of
// format only. Formatting problems are returned as warnings; err is set only
// when evaluating an argument fails.
func Format(format string, args []Expr, env *Environment) (string, []string, error) {
	var (
		out      strings.Builder
		warnings []string
		next     int
	)

scan:
	for i := 0; i < len(format); {
		c := format[i]
		if c == '\\' {
			if i+1 >= len(format) {
				out.WriteByte('\\')
				break
			}
			e := format[i+1]
			i += 2
			switch e {
			case '0':
				break scan
			case 'n', 't', 'r', '\\', '"', '\'', '?':
				b, _ := decodeEscape(e)
				out.WriteByte(b)
			default:
				out.WriteByte('\\')
				out.WriteByte(e)
			}
			continue
		}
		if c != '%' {
			out.WriteByte(c)
			i++
			continue
		}

		conv := parseConversion(format[i:])
		i += len(conv.raw)
		switch {
		case conv.verb == '%' && conv.raw == "%%":
			out.WriteByte('%')
			continue
		case conv.verb == 0:
			out.WriteString(conv.raw)
			warnings = append(warnings, fmt.Sprintf("incomplete format specifier '%s' at end of format", conv.raw))
			continue
		case !strings.ContainsRune("diuoxXcs", rune(conv.verb)):
			out.WriteString(conv.raw)
			warnings = append(warnings, fmt.Sprintf("unknown format specifier '%s'", conv.raw))
			continue
		case conv.tooWide():
			out.WriteString(conv.raw)
			warnings = append(warnings, fmt.Sprintf("field width of '%s' exceeds %d", conv.raw, maxFieldWidth))
			continue
		case next >= len(args):
			out.WriteString(conv.raw)
			warnings = append(warnings, fmt.Sprintf("missing argument for '%s'", conv.raw))
			continue
		}

		arg := args[next]
		next++
		text, warning, err := conv.render(arg, env)
		if err != nil {
			return "", nil, err
		}
		out.WriteString(text)
		if warning != "" {
			warnings = append(warnings, warning)
		}
	}

	if next < len(args) {
		// surplus arguments are still evaluated, as C would
		for _, arg := range args[next:] {
			if _, ok := arg.(*StringLit); ok {
				continue
			}
			if _, err := Evaluate(arg, env); err != nil {
				return "", nil, err
			}
		}
		warnings = append(warnings, fmt.Sprintf("%d surplus argument(s) ignored", len(args)-next))
	}
	return out.String(), warnings, nil
}

// parseConversion reads flags, width, precision, length modifiers and the
// verb of the directive at the start of s.
func parseConversion(s string) conversion {
	var c conversion
	i := 1
	start := i
	for i < len(s) && strings.IndexByte("-+ 0#", s[i]) >= 0 {
		i++
	}
	c.flags = s[start:i]
	start = i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	c.width = s[start:i]
	if i < len(s) && s[i] == '.' {
		start = i
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		c.precision = s[start:i]
	}
	for i < len(s) && (s[i] == 'l' || s[i] == 'h') {
		i++
	}
	if i < len(s) {
		c.verb = s[i]
		i++
	}
	c.raw = s[:i]
	return c
}

func (c conversion) tooWide() bool {
	for _, field := range []string{c.width, strings.TrimPrefix(c.precision, ".")} {
		if field == "" {
			continue
		}
		if n, err := strconv.Atoi(field); err != nil || n > maxFieldWidth {
			return true
		}
	}
	return false
}

func (c conversion) goVerb(verb byte, keepPrecision bool) string {
	directive := "%" + c.flags + c.width
	if keepPrecision {
		directive += c.precision
	}
	return directive + string(verb)
}

// truncate applies the precision of a %s directive. Like C it counts bytes.
func (c conversion) truncate(s string) string {
	if c.precision == "" {
		return s
	}
	n, _ := strconv.Atoi(strings.TrimPrefix(c.precision, "."))
	if n < len(s) {
		return s[:n]
	}
	return s
}

// pad right-aligns s in the field width with spaces, or left-aligns it under
// the '-' flag. The '0' flag does not apply to %s and %c.
func (c conversion) pad(s string) string {
	width, _ := strconv.Atoi(c.width)
	if len(s) >= width {
		return s
	}
	fill := strings.Repeat(" ", width-len(s))
	if strings.Contains(c.flags, "-") {
		return s + fill
	}
	return fill + s
}

func (c conversion) render(arg Expr, env *Environment) (string, string, error) {
	if lit, ok := arg.(*StringLit); ok {
		s := decodeLiteral(lit.Value)
		if c.verb == 's' {
			return c.pad(c.truncate(s)), "", nil
		}
		return s, fmt.Sprintf("'%s' expects an integer but got a string", c.raw), nil
	}

	v, err := Evaluate(arg, env)
	if err != nil {
		return "", "", err
	}
	switch c.verb {
	case 'd', 'i':
		return fmt.Sprintf(c.goVerb('d', true), v), "", nil
	case 'u':
		return fmt.Sprintf(c.goVerb('d', true), uint32(v)), "", nil
	case 'o', 'x', 'X':
		return fmt.Sprintf(c.goVerb(c.verb, true), uint32(v)), "", nil
	case 'c':
		b := byte(v)
		if b >= 0x80 {
			return c.pad(string([]byte{b})), fmt.Sprintf("'%s' value %d is not an ASCII character; the byte is not valid UTF-8 on its own", c.raw, b), nil
		}
		return c.pad(string([]byte{b})), "", nil
	default: // 's'
		return fmt.Sprintf(c.goVerb('d', false), v), fmt.Sprintf("'%s' expects a string but got an integer", c.raw), nil
	}
}

// decodeLiteral expands the escapes of a string literal argument. Unknown
// escapes keep their backslash.
func decodeLiteral(raw string) string {
	if !strings.Contains(raw, "\\") {
		return raw
	}
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			b.WriteByte(raw[i])
			continue
		}
		i++
		if raw[i] == '0' {
			break
		}
		if d, ok := decodeEscape(raw[i]); ok {
			b.WriteByte(d)
			continue
		}
		b.WriteByte('\\')
		b.WriteByte(raw[i])
	}
	return b.String()
}

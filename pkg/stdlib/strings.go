// String operations
package stdlib

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

func str(args []any, i int) string { return args[i].(string) }

// Trim removes leading and trailing spaces and collapses inner runs of
// spaces to one, as spreadsheets do
func Trim(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool { return r == ' ' }), " ")
}

// Left returns the first n characters
func Left(s string, n int) (string, error) {
	if n < 0 {
		return "", NewFault(Value, "LEFT with negative length")
	}
	r := []rune(s)
	if n > len(r) {
		n = len(r)
	}
	return string(r[:n]), nil
}

// Right returns the last n characters
func Right(s string, n int) (string, error) {
	if n < 0 {
		return "", NewFault(Value, "RIGHT with negative length")
	}
	r := []rune(s)
	if n > len(r) {
		n = len(r)
	}
	return string(r[len(r)-n:]), nil
}

// Mid returns n characters starting at the 1-based position start
func Mid(s string, start, n int) (string, error) {
	if start < 1 || n < 0 {
		return "", NewFault(Value, "MID with start %d and length %d", start, n)
	}
	r := []rune(s)
	if start > len(r) {
		return "", nil
	}
	end := start - 1 + n
	if end > len(r) {
		end = len(r)
	}
	return string(r[start-1 : end]), nil
}

// Find returns the 1-based position of find in within, searching from start
func Find(find, within string, start int, fold bool) (int, error) {
	r := []rune(within)
	if start < 1 || start > len(r)+1 {
		return 0, NewFault(Value, "start position %d out of range", start)
	}
	hay := string(r[start-1:])
	if fold {
		hay, find = strings.ToLower(hay), strings.ToLower(find)
	}
	idx := strings.Index(hay, find)
	if idx < 0 {
		return 0, NewFault(Value, "text not found")
	}
	return start + utf8.RuneCountInString(hay[:idx]), nil
}

// Substitute replaces occurrences of old; instance > 0 replaces only that one
func Substitute(s, old, repl string, instance int) string {
	if old == "" {
		return s
	}
	if instance <= 0 {
		return strings.ReplaceAll(s, old, repl)
	}
	idx := 0
	for i := 1; ; i++ {
		j := strings.Index(s[idx:], old)
		if j < 0 {
			return s
		}
		if i == instance {
			return s[:idx+j] + repl + s[idx+j+len(old):]
		}
		idx += j + len(old)
	}
}

// CompareIgnoreCase orders text case-insensitively
func CompareIgnoreCase(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// FormatText formats a number with a spreadsheet number format. Supported
// are General, @, 0, 0.0.., #,##0.., and percent variants.
func FormatText(v float64, format string) string {
	switch format {
	case "", "General", "@":
		return decimal.NewFromFloat(v).String()
	}
	percent := strings.HasSuffix(format, "%")
	if percent {
		format = strings.TrimSuffix(format, "%")
		v *= 100
	}
	grouped := strings.Contains(format, ",")
	places := 0
	if i := strings.IndexByte(format, '.'); i >= 0 {
		places = strings.Count(format[i+1:], "0")
	}
	out := decimal.NewFromFloat(v).StringFixed(int32(places))
	if grouped {
		out = groupThousands(out)
	}
	if percent {
		out += "%"
	}
	return out
}

func groupThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String()
	if hasFrac {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

func registerStrings(r *Registry) {
	r.Register("str.concat", func(_ *Context, a []any) (any, error) {
		var b strings.Builder
		for i := range a {
			b.WriteString(str(a, i))
		}
		return b.String(), nil
	})
	r.Register("str.equal", func(_ *Context, a []any) (any, error) {
		if strings.EqualFold(str(a, 0), str(a, 1)) {
			return 1, nil
		}
		return 0, nil
	})
	r.Register("str.compare", func(_ *Context, a []any) (any, error) {
		return CompareIgnoreCase(str(a, 0), str(a, 1)), nil
	})
	r.Register("str.LEN", func(_ *Context, a []any) (any, error) { return utf8.RuneCountInString(str(a, 0)), nil })
	r.Register("str.LOWER", func(_ *Context, a []any) (any, error) { return strings.ToLower(str(a, 1)), nil })
	r.Register("str.UPPER", func(_ *Context, a []any) (any, error) { return strings.ToUpper(str(a, 1)), nil })
	r.Register("str.TRIM", func(_ *Context, a []any) (any, error) { return Trim(str(a, 0)), nil })
	r.Register("str.LEFT", func(_ *Context, a []any) (any, error) { return Left(str(a, 0), num(a, 1)) })
	r.Register("str.RIGHT", func(_ *Context, a []any) (any, error) { return Right(str(a, 0), num(a, 1)) })
	r.Register("str.MID", func(_ *Context, a []any) (any, error) { return Mid(str(a, 0), num(a, 1), num(a, 2)) })
	r.Register("str.EXACT", func(_ *Context, a []any) (any, error) {
		if str(a, 0) == str(a, 1) {
			return 1, nil
		}
		return 0, nil
	})
	r.Register("str.FIND", func(_ *Context, a []any) (any, error) { return Find(str(a, 0), str(a, 1), num(a, 2), false) })
	r.Register("str.SEARCH", func(_ *Context, a []any) (any, error) { return Find(str(a, 1), str(a, 2), num(a, 3), true) })
	r.Register("str.SUBSTITUTE", func(_ *Context, a []any) (any, error) {
		instance := 0
		if len(a) > 3 {
			instance = num(a, 3)
		}
		return Substitute(str(a, 0), str(a, 1), str(a, 2), instance), nil
	})
	r.Register("str.REPT", func(_ *Context, a []any) (any, error) {
		n := num(a, 1)
		if n < 0 || n > math.MaxInt32/max(1, len(str(a, 0))) {
			return nil, NewFault(Value, "REPT count %d out of range", n)
		}
		return strings.Repeat(str(a, 0), n), nil
	})
	r.Register("str.TEXT", func(_ *Context, a []any) (any, error) { return FormatText(f64(a, 1), str(a, 2)), nil })
}

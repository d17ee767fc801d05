package reading

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Reading is one row returned by the counter: an ordered tuple of channel
// values. Rows have no identity beyond their arrival order.
type Reading struct {
	Timestamp time.Time
	Values    []float64
}

// ParseError reports a token that is not a number.
type ParseError struct {
	Line  string
	Token string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid value %q in line %q: %v", e.Token, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Separators understood by Parse.
const (
	Comma = ','
	Space = ' '
)

// Parse parses a counter response or data file row. With sep == Comma the
// line is split on commas, otherwise on runs of whitespace.
// Example: "1234,567" -> [1234 567]
func Parse(line string, sep rune) (Reading, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Reading{}, fmt.Errorf("empty line")
	}

	var fields []string
	if sep == Comma {
		fields = strings.Split(line, ",")
	} else {
		fields = strings.FieldsFunc(line, unicode.IsSpace)
	}

	return ParseRow(line, fields)
}

// ParseRow parses already split fields. Empty fields are skipped so that a
// trailing separator does not produce an error.
func ParseRow(line string, fields []string) (Reading, error) {
	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Reading{}, &ParseError{Line: line, Token: f, Err: err}
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return Reading{}, fmt.Errorf("no values in line %q", line)
	}

	return Reading{Values: values}, nil
}

// Value returns the i-th channel value and whether it is present.
func (r Reading) Value(i int) (float64, bool) {
	if i < 0 || i >= len(r.Values) {
		return 0, false
	}
	return r.Values[i], true
}

// Format joins the values with single spaces. Integral values keep a ".0"
// suffix so recorded files read the same regardless of the counter mode.
func (r Reading) Format() string {
	var b strings.Builder
	for i, v := range r.Values {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(FormatFloat(v))
	}
	return b.String()
}

// FormatFloat renders v with the shortest representation, e.g. 12 -> "12.0".
func FormatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if strings.ContainsAny(s, ".eEnN") {
		return s
	}
	return s + ".0"
}

// Package commune holds the municipality data model and the fusion of boundary
// geometries with fibre coverage statistics.
package commune

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// codeWidth is the width of an INSEE commune code.
const codeWidth = 5

// Code is a normalized INSEE commune code. The zero value is the invalid code
// and never matches another code, including another invalid one.
type Code string

// InvalidCode is produced for null or empty identifiers.
const InvalidCode Code = ""

// Valid reports whether c can take part in a join.
func (c Code) Valid() bool {
	return c != InvalidCode
}

func (c Code) String() string {
	return string(c)
}

// NormalizeCode converts a raw identifier of any type into its canonical form.
// Text keeps its leading zeros, integral numbers lose any fraction, and purely
// numeric codes shorter than five digits are left-padded with zeros.
func NormalizeCode(raw any) Code {
	switch v := raw.(type) {
	case nil:
		return InvalidCode
	case Code:
		return normalizeText(string(v))
	case *Code:
		if v == nil {
			return InvalidCode
		}
		return normalizeText(string(*v))
	case string:
		return normalizeText(v)
	case *string:
		if v == nil {
			return InvalidCode
		}
		return normalizeText(*v)
	case []byte:
		return normalizeText(string(v))
	case int:
		return normalizeInt(int64(v))
	case int16:
		return normalizeInt(int64(v))
	case int32:
		return normalizeInt(int64(v))
	case int64:
		return normalizeInt(v)
	case uint32:
		return normalizeInt(int64(v))
	case float32:
		return normalizeFloat(float64(v))
	case float64:
		return normalizeFloat(v)
	case fmt.Stringer:
		return normalizeText(v.String())
	default:
		return normalizeText(fmt.Sprint(v))
	}
}

func normalizeText(s string) Code {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || s == "NAN" || s == "NULL" || s == "<NIL>" {
		return InvalidCode
	}
	// Integral decimals such as "1004.0" come from spreadsheets and dataframes.
	if whole, frac, ok := strings.Cut(s, "."); ok && isDigits(whole) && strings.Trim(frac, "0") == "" {
		s = whole
	}
	if isDigits(s) && len(s) < codeWidth {
		s = strings.Repeat("0", codeWidth-len(s)) + s
	}
	return Code(s)
}

func normalizeInt(n int64) Code {
	if n < 0 {
		return InvalidCode
	}
	return normalizeText(strconv.FormatInt(n, 10))
}

func normalizeFloat(f float64) Code {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) {
		return InvalidCode
	}
	return normalizeInt(int64(f))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Department derives the department code from a commune code: three
// characters for overseas codes (97x, 98x), two otherwise.
func (c Code) Department() string {
	s := string(c)
	if len(s) < 3 {
		return ""
	}
	if strings.HasPrefix(s, "97") || strings.HasPrefix(s, "98") {
		return s[:3]
	}
	return s[:2]
}

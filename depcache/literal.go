package depcache

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// LiteralKind enumerates the closed set of value shapes the dependency
// index can serialize canonically. Anything outside the set is carried as
// Raw, compared verbatim against the stored key.
type LiteralKind int

const (
	LiteralRaw LiteralKind = iota
	LiteralInt
	LiteralFloat
	LiteralStr
	LiteralBool
	LiteralDate
	LiteralDateTime
	LiteralList
	LiteralNull
)

type Literal struct {
	Kind  LiteralKind
	Int   int64
	Float float64
	Str   string
	Bool  bool
	Time  time.Time
	List  []Literal
	Raw   string
}

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = time.RFC3339
)

// EncodeValue produces the canonical serialized form used as a dictionary
// key in the index: numbers as decimal strings, strings single-quoted,
// dates and datetimes ISO-8601, lists bracketed. The same logical value
// always encodes identically.
func EncodeValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(v)
	case string:
		return "'" + strings.ReplaceAll(v, "'", `\'`) + "'"
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return encodeFloat(float64(v))
	case float64:
		return encodeFloat(v)
	case time.Time:
		if isDateOnly(v) {
			return v.Format(dateLayout)
		}
		return v.UTC().Format(dateTimeLayout)
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, EncodeValue(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []string:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, EncodeValue(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]interface{}:
		return encodeMap(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// encodeFloat keeps integral floats in integer form so JSON-decoded numbers
// and native ints land on the same index key.
func encodeFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// EncodeDescriptor renders a field map as a sorted-key JSON object, the
// canonical form descriptors are tracked and indexed under.
func EncodeDescriptor(fields map[string]interface{}) string {
	return encodeMap(fields)
}

// encodeMap renders a sorted-key JSON object. Identification descriptors go
// through this so the recorded key and the live instance encode identically.
func encodeMap(m map[string]interface{}) string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('"')
		b.WriteString(key)
		b.WriteString(`": `)
		b.WriteString(encodeJSONValue(m[key]))
	}
	b.WriteByte('}')
	return b.String()
}

func encodeJSONValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return encodeFloat(v)
	case float32:
		return encodeFloat(float64(v))
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, encodeJSONValue(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]interface{}:
		return encodeMap(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ParseLiteral decodes a stored serialized value back into a Literal. The
// function is total: anything unrecognized comes back as Raw, never an
// error.
func ParseLiteral(stored string) Literal {
	trimmed := strings.TrimSpace(stored)

	switch trimmed {
	case "null", "None":
		return Literal{Kind: LiteralNull}
	case "true", "True":
		return Literal{Kind: LiteralBool, Bool: true}
	case "false", "False":
		return Literal{Kind: LiteralBool, Bool: false}
	}

	if len(trimmed) >= 2 {
		if (trimmed[0] == '\'' && trimmed[len(trimmed)-1] == '\'') ||
			(trimmed[0] == '"' && trimmed[len(trimmed)-1] == '"') {
			inner := trimmed[1 : len(trimmed)-1]
			inner = strings.ReplaceAll(inner, `\'`, "'")
			return Literal{Kind: LiteralStr, Str: inner}
		}
		if trimmed[0] == '[' && trimmed[len(trimmed)-1] == ']' {
			return parseList(trimmed)
		}
	}

	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return Literal{Kind: LiteralInt, Int: i}
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return Literal{Kind: LiteralFloat, Float: f}
	}
	if t, ok := parseDateTime(trimmed); ok {
		if isDateOnly(t) && len(trimmed) == len(dateLayout) {
			return Literal{Kind: LiteralDate, Time: t}
		}
		return Literal{Kind: LiteralDateTime, Time: t}
	}

	return Literal{Kind: LiteralRaw, Raw: stored}
}

func parseList(trimmed string) Literal {
	inner := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	if inner == "" {
		return Literal{Kind: LiteralList}
	}

	var items []Literal
	depth := 0
	inQuote := byte(0)
	start := 0

	for i := 0; i < len(inner); i++ {
		c := inner[i]
		if inQuote != 0 {
			if c == inQuote && (i == 0 || inner[i-1] != '\\') {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			inQuote = c
		case '[', '{', '(':
			depth++
		case ']', '}', ')':
			depth--
		case ',':
			if depth == 0 {
				items = append(items, ParseLiteral(inner[start:i]))
				start = i + 1
			}
		}
	}
	if inQuote != 0 || depth != 0 {
		return Literal{Kind: LiteralRaw, Raw: "[" + inner + "]"}
	}
	items = append(items, ParseLiteral(inner[start:]))

	return Literal{Kind: LiteralList, List: items}
}

// parseDateTime accepts ISO-8601 datetimes (with a trailing Z or offset),
// naive datetimes (normalized to UTC) and plain dates.
func parseDateTime(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		dateLayout,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isDateOnly(t time.Time) bool {
	h, m, s := t.Clock()
	return h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0
}

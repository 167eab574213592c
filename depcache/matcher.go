package depcache

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/saiset-co/sai-manager/utils"
)

// Matches reports whether a live field value satisfies a stored predicate.
// present is false when the field path did not resolve (or the old value was
// never captured); an absent value never matches. Malformed stored literals
// make the predicate non-matching, never an error.
func Matches(lookup string, stored string, current interface{}, present bool) bool {
	if !present {
		return false
	}

	switch lookup {
	case "", "exact":
		return matchesExact(ParseLiteral(stored), stored, current)
	case "gt", "gte", "lt", "lte":
		return matchesOrdering(lookup, stored, current)
	case "in":
		lit := ParseLiteral(stored)
		if lit.Kind != LiteralList {
			return false
		}
		for _, item := range lit.List {
			if matchesExact(item, encodeLiteral(item), current) {
				return true
			}
		}
		return false
	case "contains":
		return strings.Contains(stringForm(current), stripQuotes(stored))
	case "startswith":
		return strings.HasPrefix(stringForm(current), stripQuotes(stored))
	case "endswith":
		return strings.HasSuffix(stringForm(current), stripQuotes(stored))
	case "regex":
		re, err := regexp.Compile(stripQuotes(stored))
		if err != nil {
			return false
		}
		return re.MatchString(stringForm(current))
	default:
		return false
	}
}

func matchesExact(lit Literal, stored string, current interface{}) bool {
	switch lit.Kind {
	case LiteralNull:
		return current == nil
	case LiteralBool:
		if b, ok := current.(bool); ok {
			return b == lit.Bool
		}
		return false
	case LiteralInt:
		if f, ok := toFloat(current); ok {
			return f == float64(lit.Int)
		}
		return false
	case LiteralFloat:
		if f, ok := toFloat(current); ok {
			return f == lit.Float
		}
		return false
	case LiteralStr:
		if s, ok := current.(string); ok {
			return s == lit.Str
		}
		if t, ok := toTime(current); ok {
			if storedTime, parsed := parseDateTime(lit.Str); parsed {
				return t.UTC().Equal(normalizeTime(storedTime))
			}
		}
		return false
	case LiteralDate, LiteralDateTime:
		if t, ok := toTime(current); ok {
			return t.UTC().Equal(normalizeTime(lit.Time))
		}
		return false
	default:
		// Equality ladder bottom: compare the canonical encoding of the
		// live value against the stored key verbatim.
		return EncodeValue(current) == stored
	}
}

func matchesOrdering(lookup string, stored string, current interface{}) bool {
	if t, ok := toTime(current); ok {
		storedTime, parsed := parseDateTime(stripQuotes(stored))
		if !parsed {
			return false
		}
		return compareOrdering(lookup, t.UTC().Sub(normalizeTime(storedTime)))
	}

	currentFloat, currentOK := toFloat(current)
	storedFloat, storedOK := literalFloat(ParseLiteral(stored))
	if !currentOK || !storedOK {
		return false
	}

	switch lookup {
	case "gt":
		return currentFloat > storedFloat
	case "gte":
		return currentFloat >= storedFloat
	case "lt":
		return currentFloat < storedFloat
	case "lte":
		return currentFloat <= storedFloat
	}
	return false
}

func compareOrdering(lookup string, diff time.Duration) bool {
	switch lookup {
	case "gt":
		return diff > 0
	case "gte":
		return diff >= 0
	case "lt":
		return diff < 0
	case "lte":
		return diff <= 0
	}
	return false
}

// MatchesDescriptor evaluates a composite descriptor: a JSON object of two
// or more field__lookup pairs that must all hold simultaneously. The second
// return is false when the descriptor cannot be parsed.
func MatchesDescriptor(descriptor string, resolve func(FieldPath) (interface{}, bool)) (bool, bool) {
	var predicate map[string]interface{}
	if err := utils.Unmarshal([]byte(descriptor), &predicate); err != nil {
		return false, false
	}
	if len(predicate) == 0 {
		return false, false
	}

	for fieldKey, rawValue := range predicate {
		path, lookup := SplitFieldKey(fieldKey)
		current, present := resolve(path)
		if !Matches(lookup, EncodeValue(rawValue), current, present) {
			return false, true
		}
	}
	return true, true
}

func literalFloat(lit Literal) (float64, bool) {
	switch lit.Kind {
	case LiteralInt:
		return float64(lit.Int), true
	case LiteralFloat:
		return lit.Float, true
	}
	return 0, false
}

func encodeLiteral(lit Literal) string {
	switch lit.Kind {
	case LiteralInt:
		return strconv.FormatInt(lit.Int, 10)
	case LiteralFloat:
		return encodeFloat(lit.Float)
	case LiteralStr:
		return "'" + lit.Str + "'"
	case LiteralBool:
		return strconv.FormatBool(lit.Bool)
	case LiteralDate:
		return lit.Time.Format(dateLayout)
	case LiteralDateTime:
		return lit.Time.UTC().Format(dateTimeLayout)
	case LiteralNull:
		return "null"
	default:
		return lit.Raw
	}
}

func stripQuotes(s string) string {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) >= 2 {
		if (trimmed[0] == '\'' && trimmed[len(trimmed)-1] == '\'') ||
			(trimmed[0] == '"' && trimmed[len(trimmed)-1] == '"') {
			return trimmed[1 : len(trimmed)-1]
		}
	}
	return trimmed
}

func stringForm(current interface{}) string {
	if s, ok := current.(string); ok {
		return s
	}
	return stripQuotes(EncodeValue(current))
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func toTime(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case *time.Time:
		if val == nil {
			return time.Time{}, false
		}
		return *val, true
	}
	return time.Time{}, false
}

// normalizeTime treats a naive timestamp as UTC before comparison.
func normalizeTime(t time.Time) time.Time {
	return t.UTC()
}

package depcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeValue_Scalars(t *testing.T) {
	require.Equal(t, "null", EncodeValue(nil))
	require.Equal(t, "true", EncodeValue(true))
	require.Equal(t, "false", EncodeValue(false))
	require.Equal(t, "42", EncodeValue(42))
	require.Equal(t, "42", EncodeValue(int64(42)))
	require.Equal(t, "'hello'", EncodeValue("hello"))
	require.Equal(t, `'it\'s'`, EncodeValue("it's"))
}

func TestEncodeValue_FloatsCollapseToInts(t *testing.T) {
	// JSON decoding turns every number into float64; an integral float must
	// land on the same index key as the native int it came from.
	require.Equal(t, EncodeValue(42), EncodeValue(42.0))
	require.Equal(t, "2.5", EncodeValue(2.5))
}

func TestEncodeValue_Dates(t *testing.T) {
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "2024-03-15", EncodeValue(date))

	at := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	require.Equal(t, "2024-03-15T10:30:00Z", EncodeValue(at))
}

func TestEncodeValue_Lists(t *testing.T) {
	require.Equal(t, "[1, 2, 3]", EncodeValue([]interface{}{1, 2, 3}))
	require.Equal(t, "['a', 'b']", EncodeValue([]string{"a", "b"}))
	require.Equal(t, "[]", EncodeValue([]interface{}{}))
}

func TestEncodeValue_Deterministic(t *testing.T) {
	value := map[string]interface{}{"b": 2, "a": 1, "c": []interface{}{"x"}}
	first := EncodeValue(value)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, EncodeValue(value))
	}
}

func TestEncodeDescriptor_SortedKeys(t *testing.T) {
	descriptor := EncodeDescriptor(map[string]interface{}{
		"zeta":  1,
		"alpha": "x",
	})
	require.Equal(t, `{"alpha": "x", "zeta": 1}`, descriptor)
}

func TestEncodeDescriptor_Nested(t *testing.T) {
	descriptor := EncodeDescriptor(map[string]interface{}{
		"owner": map[string]interface{}{"name": "bob", "age": 4},
	})
	require.Equal(t, `{"owner": {"age": 4, "name": "bob"}}`, descriptor)
}

func TestParseLiteral_Scalars(t *testing.T) {
	require.Equal(t, LiteralNull, ParseLiteral("null").Kind)
	require.Equal(t, LiteralNull, ParseLiteral("None").Kind)

	lit := ParseLiteral("true")
	require.Equal(t, LiteralBool, lit.Kind)
	require.True(t, lit.Bool)

	lit = ParseLiteral("42")
	require.Equal(t, LiteralInt, lit.Kind)
	require.Equal(t, int64(42), lit.Int)

	lit = ParseLiteral("2.5")
	require.Equal(t, LiteralFloat, lit.Kind)
	require.Equal(t, 2.5, lit.Float)

	lit = ParseLiteral("'hello'")
	require.Equal(t, LiteralStr, lit.Kind)
	require.Equal(t, "hello", lit.Str)
}

func TestParseLiteral_Dates(t *testing.T) {
	lit := ParseLiteral("2024-03-15")
	require.Equal(t, LiteralDate, lit.Kind)
	require.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), lit.Time)

	lit = ParseLiteral("2024-03-15T10:30:00Z")
	require.Equal(t, LiteralDateTime, lit.Kind)
	require.Equal(t, time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), lit.Time.UTC())
}

func TestParseLiteral_List(t *testing.T) {
	lit := ParseLiteral("[1, 'two', true]")
	require.Equal(t, LiteralList, lit.Kind)
	require.Len(t, lit.List, 3)
	require.Equal(t, LiteralInt, lit.List[0].Kind)
	require.Equal(t, "two", lit.List[1].Str)
	require.True(t, lit.List[2].Bool)
}

func TestParseLiteral_ListWithEmbeddedComma(t *testing.T) {
	lit := ParseLiteral("['a, b', 'c']")
	require.Equal(t, LiteralList, lit.Kind)
	require.Len(t, lit.List, 2)
	require.Equal(t, "a, b", lit.List[0].Str)
}

func TestParseLiteral_UnknownFallsBackToRaw(t *testing.T) {
	lit := ParseLiteral("not-a-literal-###")
	require.Equal(t, LiteralRaw, lit.Kind)
	require.Equal(t, "not-a-literal-###", lit.Raw)
}

func TestParseLiteral_RoundTrip(t *testing.T) {
	values := []interface{}{42, 2.5, "hello", true, nil}
	for _, value := range values {
		encoded := EncodeValue(value)
		parsed := ParseLiteral(encoded)
		require.NotEqual(t, LiteralRaw, parsed.Kind, "encoding of %v should parse back", value)
	}
}

package depcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMatches_AbsentNeverMatches(t *testing.T) {
	require.False(t, Matches("exact", "null", nil, false))
	require.False(t, Matches("gt", "1", nil, false))
}

func TestMatches_Exact(t *testing.T) {
	require.True(t, Matches("exact", "'active'", "active", true))
	require.False(t, Matches("exact", "'active'", "archived", true))

	require.True(t, Matches("exact", "42", 42, true))
	require.True(t, Matches("exact", "42", 42.0, true))
	require.True(t, Matches("exact", "42", int64(42), true))
	require.False(t, Matches("exact", "42", 43, true))

	require.True(t, Matches("exact", "true", true, true))
	require.False(t, Matches("exact", "true", false, true))

	require.True(t, Matches("exact", "null", nil, true))
	require.False(t, Matches("exact", "null", "something", true))
}

func TestMatches_ExactTime(t *testing.T) {
	at := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	require.True(t, Matches("exact", "2024-03-15T10:30:00Z", at, true))
	require.True(t, Matches("exact", "'2024-03-15T10:30:00Z'", at, true))
	require.False(t, Matches("exact", "2024-03-15T10:31:00Z", at, true))
}

func TestMatches_Ordering(t *testing.T) {
	require.True(t, Matches("gt", "10", 11, true))
	require.False(t, Matches("gt", "10", 10, true))
	require.True(t, Matches("gte", "10", 10, true))
	require.True(t, Matches("lt", "10", 9.5, true))
	require.True(t, Matches("lte", "10", 10, true))
	require.False(t, Matches("lte", "10", 11, true))
}

func TestMatches_OrderingTime(t *testing.T) {
	at := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	require.True(t, Matches("gt", "2024-03-15T10:00:00Z", at, true))
	require.False(t, Matches("lt", "2024-03-15T10:00:00Z", at, true))
	require.True(t, Matches("gte", "2024-03-15", at, true))
}

func TestMatches_OrderingNonNumeric(t *testing.T) {
	require.False(t, Matches("gt", "10", "not a number", true))
	require.False(t, Matches("gt", "'abc'", 5, true))
}

func TestMatches_In(t *testing.T) {
	require.True(t, Matches("in", "[1, 2, 3]", 2, true))
	require.False(t, Matches("in", "[1, 2, 3]", 4, true))
	require.True(t, Matches("in", "['a', 'b']", "a", true))
	require.False(t, Matches("in", "42", 42, true))
}

func TestMatches_Strings(t *testing.T) {
	require.True(t, Matches("contains", "'ell'", "hello", true))
	require.False(t, Matches("contains", "'xyz'", "hello", true))
	require.True(t, Matches("startswith", "'he'", "hello", true))
	require.True(t, Matches("endswith", "'lo'", "hello", true))
}

func TestMatches_Regex(t *testing.T) {
	require.True(t, Matches("regex", "'^h.*o$'", "hello", true))
	require.False(t, Matches("regex", "'^x'", "hello", true))
	// A malformed pattern is non-matching, not an error.
	require.False(t, Matches("regex", "'['", "hello", true))
}

func TestMatches_UnknownLookup(t *testing.T) {
	require.False(t, Matches("between", "1", 1, true))
}

func TestMatchesDescriptor_AllPairsMustHold(t *testing.T) {
	data := map[string]interface{}{"status": "active", "age": 30}
	resolve := func(path FieldPath) (interface{}, bool) {
		return ResolvePath(data, path)
	}

	matched, ok := MatchesDescriptor(`{"status": "active", "age__gte": 18}`, resolve)
	require.True(t, ok)
	require.True(t, matched)

	matched, ok = MatchesDescriptor(`{"status": "active", "age__gte": 40}`, resolve)
	require.True(t, ok)
	require.False(t, matched)
}

func TestMatchesDescriptor_Unparseable(t *testing.T) {
	_, ok := MatchesDescriptor("not json", func(FieldPath) (interface{}, bool) { return nil, false })
	require.False(t, ok)

	_, ok = MatchesDescriptor("{}", func(FieldPath) (interface{}, bool) { return nil, false })
	require.False(t, ok)
}

func TestSplitFieldKey(t *testing.T) {
	path, lookup := SplitFieldKey("age__gte")
	require.Equal(t, "age", path.String())
	require.Equal(t, "gte", lookup)

	path, lookup = SplitFieldKey("owner__name")
	require.Equal(t, "owner__name", path.String())
	require.Equal(t, "exact", lookup)

	path, lookup = SplitFieldKey("owner__name__contains")
	require.Equal(t, "owner__name", path.String())
	require.Equal(t, "contains", lookup)

	path, lookup = SplitFieldKey("status")
	require.Equal(t, "status", path.String())
	require.Equal(t, "exact", lookup)
}

func TestResolvePath(t *testing.T) {
	instance := &mapInstance{
		manager: "orders",
		data: map[string]interface{}{
			"status": "open",
			"owner":  map[string]interface{}{"name": "alice"},
		},
	}

	value, ok := ResolvePath(instance, FieldPath{"status"})
	require.True(t, ok)
	require.Equal(t, "open", value)

	value, ok = ResolvePath(instance, FieldPath{"owner", "name"})
	require.True(t, ok)
	require.Equal(t, "alice", value)

	_, ok = ResolvePath(instance, FieldPath{"owner", "missing"})
	require.False(t, ok)

	_, ok = ResolvePath(instance, FieldPath{"missing", "deeper"})
	require.False(t, ok)
}

func TestResolvePath_Struct(t *testing.T) {
	type owner struct {
		Name string
	}
	root := map[string]interface{}{"owner": &owner{Name: "bob"}}

	value, ok := ResolvePath(root, FieldPath{"owner", "name"})
	require.True(t, ok)
	require.Equal(t, "bob", value)
}

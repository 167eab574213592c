package depcache

import (
	"reflect"
	"strings"

	"github.com/saiset-co/sai-manager/types"
)

// FieldPath is an ordered list of attribute segments resolved one by one
// against an instance, a map, or a struct.
type FieldPath []string

func (fp FieldPath) String() string {
	return strings.Join(fp, "__")
}

var lookupOperators = map[string]bool{
	"exact":      true,
	"gt":         true,
	"gte":        true,
	"lt":         true,
	"lte":        true,
	"in":         true,
	"contains":   true,
	"startswith": true,
	"endswith":   true,
	"regex":      true,
}

// SplitFieldKey separates an index key like "owner__name__gt" into the
// field path and its lookup operator. A trailing segment that is not a
// known operator belongs to the path; the lookup defaults to exact.
func SplitFieldKey(fieldKey string) (FieldPath, string) {
	segments := strings.Split(fieldKey, "__")
	if len(segments) > 1 {
		last := segments[len(segments)-1]
		if lookupOperators[last] {
			return FieldPath(segments[:len(segments)-1]), last
		}
	}
	return FieldPath(segments), "exact"
}

// ResolvePath walks the path segment by segment. A missing attribute
// anywhere along the path yields (nil, false), never an error.
func ResolvePath(root interface{}, path FieldPath) (interface{}, bool) {
	current := root
	for _, segment := range path {
		value, ok := resolveSegment(current, segment)
		if !ok {
			return nil, false
		}
		current = value
	}
	return current, true
}

func resolveSegment(node interface{}, segment string) (interface{}, bool) {
	if node == nil {
		return nil, false
	}

	if instance, ok := node.(types.Instance); ok {
		if segment == "identification" {
			return instance.Identification(), true
		}
		return instance.Field(segment)
	}

	if m, ok := node.(map[string]interface{}); ok {
		value, exists := m[segment]
		return value, exists
	}

	v := reflect.ValueOf(node)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		mv := v.MapIndex(reflect.ValueOf(segment))
		if !mv.IsValid() {
			return nil, false
		}
		return mv.Interface(), true
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			if strings.EqualFold(field.Name, segment) {
				return v.Field(i).Interface(), true
			}
		}
		return nil, false
	default:
		return nil, false
	}
}

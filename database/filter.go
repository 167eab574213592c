package database

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saiset-co/sai-manager/types"
)

// Filter and update helpers shared by the document backends. Filters use
// mongo-style operators; a bare value means equality. Nested fields are
// addressed with dots.

func matchesFilter(doc map[string]interface{}, filter map[string]interface{}) bool {
	for key, value := range filter {
		if !matchesField(doc, key, value) {
			return false
		}
	}
	return true
}

func matchesField(doc map[string]interface{}, key string, filterValue interface{}) bool {
	docValue, exists := fieldValue(doc, key)
	if !exists {
		return false
	}
	return compareValues(docValue, filterValue)
}

func fieldValue(doc map[string]interface{}, key string) (interface{}, bool) {
	keys := strings.Split(key, ".")
	current := doc

	for i, k := range keys {
		if i == len(keys)-1 {
			value, exists := current[k]
			return value, exists
		}

		next, exists := current[k]
		if !exists {
			return nil, false
		}
		nextMap, ok := next.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current = nextMap
	}

	return nil, false
}

func compareValues(docValue, filterValue interface{}) bool {
	operators, ok := filterValue.(map[string]interface{})
	if !ok {
		return valuesEqual(docValue, filterValue)
	}

	for op, value := range operators {
		matched := false
		switch op {
		case "$eq":
			matched = valuesEqual(docValue, value)
		case "$ne":
			matched = !valuesEqual(docValue, value)
		case "$gt", "$gte", "$lt", "$lte":
			matched = orderMatches(docValue, value, op)
		case "$in":
			matched = valueInList(docValue, value)
		case "$nin":
			matched = !valueInList(docValue, value)
		case "$exists":
			// Presence was already established by the field walk.
			if want, ok := value.(bool); ok {
				matched = want
			}
		}
		if !matched {
			return false
		}
	}

	return true
}

func valuesEqual(a, b interface{}) bool {
	if a == b {
		return true
	}

	aNum, aOk := toFloat64(a)
	bNum, bOk := toFloat64(b)
	if aOk && bOk {
		return aNum == bNum
	}

	return false
}

func valueInList(docValue, list interface{}) bool {
	arr, ok := list.([]interface{})
	if !ok {
		return false
	}
	for _, v := range arr {
		if valuesEqual(docValue, v) {
			return true
		}
	}
	return false
}

// orderMatches fails closed when either side is not numeric.
func orderMatches(a, b interface{}, op string) bool {
	aVal, aOk := toFloat64(a)
	bVal, bOk := toFloat64(b)
	if !aOk || !bOk {
		return false
	}

	switch op {
	case "$gt":
		return aVal > bVal
	case "$gte":
		return aVal >= bVal
	case "$lt":
		return aVal < bVal
	case "$lte":
		return aVal <= bVal
	}
	return false
}

func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func sortDocuments(docs []map[string]interface{}, sortSpec map[string]int) {
	fields := make([]string, 0, len(sortSpec))
	for field := range sortSpec {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	sort.SliceStable(docs, func(i, j int) bool {
		for _, field := range fields {
			cmp := compareFieldValues(docs[i][field], docs[j][field])
			if cmp == 0 {
				continue
			}
			if sortSpec[field] < 0 {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func compareFieldValues(a, b interface{}) int {
	aNum, aOk := toFloat64(a)
	bNum, bOk := toFloat64(b)
	if aOk && bOk {
		switch {
		case aNum < bNum:
			return -1
		case aNum > bNum:
			return 1
		default:
			return 0
		}
	}

	aStr, aOk := a.(string)
	bStr, bOk := b.(string)
	if aOk && bOk {
		return strings.Compare(aStr, bStr)
	}

	return 0
}

// applyUpdate applies a mongo-style update document in place. Keys
// without an operator prefix are assigned directly.
func applyUpdate(doc map[string]interface{}, update interface{}) error {
	updateMap, ok := update.(map[string]interface{})
	if !ok {
		return types.NewError("update data must be a map")
	}

	for op, value := range updateMap {
		switch op {
		case "$set":
			if setMap, ok := value.(map[string]interface{}); ok {
				for key, val := range setMap {
					doc[key] = val
				}
			}
		case "$unset":
			if unsetMap, ok := value.(map[string]interface{}); ok {
				for key := range unsetMap {
					delete(doc, key)
				}
			}
		case "$inc":
			if incMap, ok := value.(map[string]interface{}); ok {
				applyIncrements(doc, incMap)
			}
		default:
			doc[op] = value
		}
	}

	return nil
}

func applyIncrements(doc map[string]interface{}, incMap map[string]interface{}) {
	for key, val := range incMap {
		incVal, ok := toFloat64(val)
		if !ok {
			continue
		}

		current, exists := doc[key]
		if !exists {
			doc[key] = incVal
			continue
		}
		if currentVal, ok := toFloat64(current); ok {
			doc[key] = currentVal + incVal
		}
	}
}

// stampNew assigns the document identity and bookkeeping timestamps.
// The offset keeps creation order observable within a batch.
func stampNew(doc map[string]interface{}, now int64, offset int) string {
	internalID := uuid.New().String()
	doc["internal_id"] = internalID
	doc["cr_time"] = now + int64(offset)
	doc["ch_time"] = now + int64(offset)
	return internalID
}

func nowNano() int64 {
	return time.Now().UnixNano()
}

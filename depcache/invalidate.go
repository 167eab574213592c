package depcache

import (
	"go.uber.org/zap"

	"github.com/saiset-co/sai-manager/types"
	"github.com/saiset-co/sai-manager/utils"
)

// Engine walks the stored predicates for a changed instance and drops every
// cache key whose predicate truth value shifted.
//
// The two sections carry different policies, preserved from the system this
// cache models: filter entries invalidate whenever the new state matches
// (the cached computation may depend on any field of a matching instance,
// not only the filtered one), while exclude entries invalidate only on a
// transition, because an unchanged excluded/included status provably cannot
// shift the covered set for this instance.
type Engine struct {
	index  *IndexStore
	logger types.Logger
}

func NewEngine(index *IndexStore, logger types.Logger) *Engine {
	return &Engine{
		index:  index,
		logger: logger,
	}
}

// InvalidateOnChange returns how many cache keys the change invalidated.
func (e *Engine) InvalidateOnChange(managerName string, instance types.Instance, oldValues map[string]interface{}) (int, error) {
	if instance == nil {
		return 0, types.ErrInvalidParameter
	}

	idx := e.index.GetFullIndex()

	newResolve := func(path FieldPath) (interface{}, bool) {
		return ResolvePath(instance, path)
	}
	oldResolve := func(path FieldPath) (interface{}, bool) {
		value, exists := oldValues[path.String()]
		return value, exists
	}

	selected := make(map[string]bool)

	for _, direction := range []struct {
		name    string
		section map[string]*types.ManagerIndex
	}{
		{"filter", idx.Filter},
		{"exclude", idx.Exclude},
	} {
		mi := direction.section[managerName]
		if mi == nil {
			continue
		}

		// Composite conjunctions first: a composite that did not change
		// truth value per the section policy shields its member lookups
		// from false-positive selection for that cache key.
		shielded := make(map[string]map[string]bool)
		for cacheKey, descriptors := range mi.Composites {
			triggered := false
			memberFields := make(map[string]bool)

			for _, descriptor := range descriptors {
				newAll, newOK := MatchesDescriptor(descriptor, newResolve)
				oldAll, oldOK := MatchesDescriptor(descriptor, oldResolve)
				if !newOK && !oldOK {
					continue
				}

				if sectionTriggers(direction.name, oldAll, newAll) {
					triggered = true
					break
				}

				for _, fieldKey := range descriptorFields(descriptor) {
					memberFields[fieldKey] = true
				}
			}

			if triggered {
				selected[cacheKey] = true
			} else if len(memberFields) > 0 {
				shielded[cacheKey] = memberFields
			}
		}

		for fieldKey, values := range mi.Lookups {
			path, lookup := SplitFieldKey(fieldKey)

			newValue, newPresent := newResolve(path)
			oldValue, oldPresent := oldResolve(path)

			for serialized, keys := range values {
				newMatch := Matches(lookup, serialized, newValue, newPresent)
				oldMatch := Matches(lookup, serialized, oldValue, oldPresent)

				if !sectionTriggers(direction.name, oldMatch, newMatch) {
					continue
				}

				for cacheKey := range keys {
					// A composite shields only what it put there: a
					// standalone dependency on the same leaf still fires.
					if fields, ok := shielded[cacheKey]; ok && fields[fieldKey] && !keys.Standalone(cacheKey) {
						continue
					}
					selected[cacheKey] = true
				}
			}
		}
	}

	if len(selected) == 0 {
		return 0, nil
	}

	for cacheKey := range selected {
		if err := e.index.InvalidateCacheKey(cacheKey); err != nil {
			e.logger.Error("Failed to invalidate cache key",
				zap.String("cache_key", cacheKey),
				zap.Error(err))
		}
	}

	err := e.index.lock.WithLock(func() error {
		idx := e.index.GetFullIndex()
		for cacheKey := range selected {
			removeCacheKey(idx, cacheKey)
		}
		return e.index.SetFullIndex(idx)
	})
	if err != nil {
		return 0, types.WrapError(err, "failed to prune invalidated keys from index")
	}

	e.logger.Debug("Cache invalidation completed",
		zap.String("manager", managerName),
		zap.Int("invalidated_keys", len(selected)))

	return len(selected), nil
}

// sectionTriggers encodes the filter/exclude asymmetry.
func sectionTriggers(direction string, oldMatch, newMatch bool) bool {
	if direction == "exclude" {
		return oldMatch != newMatch
	}
	return newMatch
}

func descriptorFields(descriptor string) []string {
	var parsed map[string]interface{}
	if err := utils.Unmarshal([]byte(descriptor), &parsed); err != nil {
		return nil
	}
	fields := make([]string, 0, len(parsed))
	for fieldKey := range parsed {
		fields = append(fields, fieldKey)
	}
	return fields
}

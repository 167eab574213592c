package depcache

import (
	"go.uber.org/zap"

	"github.com/saiset-co/sai-manager/types"
	"github.com/saiset-co/sai-manager/utils"
)

// IndexStore owns the persisted dependency index: one JSON blob in the
// shared record store, read-modify-written under the index lock. Nothing
// else mutates the blob.
type IndexStore struct {
	store       types.RecordStore
	logger      types.Logger
	lock        *IndexLock
	indexKey    string
	valuePrefix string
}

func NewIndexStore(store types.RecordStore, logger types.Logger, lock *IndexLock, indexKey, valuePrefix string) *IndexStore {
	return &IndexStore{
		store:       store,
		logger:      logger,
		lock:        lock,
		indexKey:    indexKey,
		valuePrefix: valuePrefix,
	}
}

// GetFullIndex loads the current index. A missing or corrupted blob is
// recovered as an empty index; the result is always well-formed at every
// nesting depth.
func (s *IndexStore) GetFullIndex() *types.DependencyIndex {
	raw, exists := s.store.Get(s.indexKey)
	if !exists {
		return types.NewDependencyIndex()
	}

	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		s.logger.Warn("Dependency index blob has unexpected type, rebuilding empty")
		return types.NewDependencyIndex()
	}

	idx := types.NewDependencyIndex()
	if err := utils.Unmarshal(data, idx); err != nil {
		s.logger.Warn("Dependency index blob corrupted, rebuilding empty", zap.Error(err))
		return types.NewDependencyIndex()
	}

	idx.Normalize()
	return idx
}

// SetFullIndex persists the index with no expiry. The index is long-lived
// metadata, explicitly managed rather than TTL'd.
func (s *IndexStore) SetFullIndex(idx *types.DependencyIndex) error {
	data, err := utils.Marshal(idx)
	if err != nil {
		return types.WrapError(err, "failed to marshal dependency index")
	}

	return s.store.Set(s.indexKey, string(data), 0)
}

// RecordDependencies folds the tracked lookups into the index under the
// lock. Descriptors with two or more field pairs are additionally recorded
// as composite predicates for their cache key, so a partial-match
// transition on a single member never falsely invalidates the conjunction.
func (s *IndexStore) RecordDependencies(cacheKey string, deps []types.TrackedDependency) error {
	if cacheKey == "" {
		return types.ErrCacheKeyEmpty
	}

	return s.lock.WithLock(func() error {
		idx := s.GetFullIndex()

		for _, dep := range deps {
			var parsed map[string]interface{}
			if err := utils.Unmarshal([]byte(dep.Descriptor), &parsed); err != nil {
				s.logger.Debug("Skipping unparseable dependency descriptor",
					zap.String("manager", dep.Manager),
					zap.String("descriptor", dep.Descriptor),
					zap.Error(err))
				continue
			}

			section := idx.Section(dep.Operation)
			mi := section[dep.Manager]
			if mi == nil {
				mi = types.NewManagerIndex()
				section[dep.Manager] = mi
			}

			if dep.Operation == types.OperationIdentification {
				addLookup(mi, "identification", encodeMap(parsed), cacheKey, true)
				continue
			}

			composite := len(parsed) >= 2
			if composite {
				addComposite(mi, cacheKey, encodeMap(parsed))
			}

			for fieldKey, rawValue := range parsed {
				addLookup(mi, fieldKey, EncodeValue(rawValue), cacheKey, !composite)
			}
		}

		return s.SetFullIndex(idx)
	})
}

// RemoveCacheKeyFromIndex deep-scans every leaf and composite entry,
// discarding the key and pruning now-empty containers. Idempotent.
func (s *IndexStore) RemoveCacheKeyFromIndex(cacheKey string) error {
	return s.lock.WithLock(func() error {
		idx := s.GetFullIndex()
		removeCacheKey(idx, cacheKey)
		return s.SetFullIndex(idx)
	})
}

// removeCacheKey prunes a cache key from an already-loaded index, for
// callers that batch several removals inside one lock hold.
func removeCacheKey(idx *types.DependencyIndex, cacheKey string) {
	for _, section := range []map[string]*types.ManagerIndex{idx.Filter, idx.Exclude} {
		for managerName, mi := range section {
			for fieldKey, values := range mi.Lookups {
				for serialized, keys := range values {
					keys.Remove(cacheKey)
					if len(keys) == 0 {
						delete(values, serialized)
					}
				}
				if len(values) == 0 {
					delete(mi.Lookups, fieldKey)
				}
			}
			if mi.Composites != nil {
				delete(mi.Composites, cacheKey)
				if len(mi.Composites) == 0 {
					mi.Composites = nil
				}
			}
			if mi.Empty() {
				delete(section, managerName)
			}
		}
	}
}

// InvalidateCacheKey deletes the cached value itself. The index entry is
// handled separately; a missing value is a no-op.
func (s *IndexStore) InvalidateCacheKey(cacheKey string) error {
	if cacheKey == "" {
		return nil
	}
	return s.store.Delete(s.valuePrefix + cacheKey)
}

// TrackedFields lists the field paths currently indexed for a manager in
// either section, driving old-value capture before a mutation.
func (s *IndexStore) TrackedFields(managerName string) []string {
	idx := s.GetFullIndex()

	seen := make(map[string]bool)
	var fields []string

	add := func(fieldKey string) {
		path, _ := SplitFieldKey(fieldKey)
		name := path.String()
		if !seen[name] {
			seen[name] = true
			fields = append(fields, name)
		}
	}

	for _, section := range []map[string]*types.ManagerIndex{idx.Filter, idx.Exclude} {
		mi := section[managerName]
		if mi == nil {
			continue
		}
		for fieldKey := range mi.Lookups {
			add(fieldKey)
		}
		for _, descriptors := range mi.Composites {
			for _, descriptor := range descriptors {
				var parsed map[string]interface{}
				if err := utils.Unmarshal([]byte(descriptor), &parsed); err != nil {
					continue
				}
				for fieldKey := range parsed {
					add(fieldKey)
				}
			}
		}
	}

	return fields
}

func addLookup(mi *types.ManagerIndex, fieldKey, serialized, cacheKey string, standalone bool) {
	values := mi.Lookups[fieldKey]
	if values == nil {
		values = make(map[string]types.KeySet)
		mi.Lookups[fieldKey] = values
	}

	keys := values[serialized]
	if keys == nil {
		keys = make(types.KeySet)
		values[serialized] = keys
	}

	if standalone {
		keys.Add(cacheKey)
	} else {
		keys.AddMember(cacheKey)
	}
}

func addComposite(mi *types.ManagerIndex, cacheKey, descriptor string) {
	if mi.Composites == nil {
		mi.Composites = make(map[string][]string)
	}

	for _, existing := range mi.Composites[cacheKey] {
		if existing == descriptor {
			return
		}
	}

	mi.Composites[cacheKey] = append(mi.Composites[cacheKey], descriptor)
}

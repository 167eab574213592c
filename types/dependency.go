package types

type Operation string

const (
	OperationFilter         Operation = "filter"
	OperationExclude        Operation = "exclude"
	OperationIdentification Operation = "identification"
)

// TrackedDependency is one lookup consulted while computing a cacheable
// value. Descriptor is a JSON-encoded {field__lookup: value} mapping for
// filter/exclude operations, or the identification mapping for direct reads.
type TrackedDependency struct {
	Manager    string    `json:"manager"`
	Operation  Operation `json:"operation"`
	Descriptor string    `json:"descriptor"`
}

// KeySet is a set of cache keys, stored as a JSON object for stable
// merging. The value records provenance: true when the key depends on the
// leaf standalone, false when the leaf exists only as a member of a
// composite conjunction recorded for that key.
type KeySet map[string]bool

func (ks KeySet) Add(key string) {
	ks[key] = true
}

// AddMember records composite-member provenance without downgrading an
// existing standalone entry.
func (ks KeySet) AddMember(key string) {
	if _, exists := ks[key]; !exists {
		ks[key] = false
	}
}

func (ks KeySet) Remove(key string) {
	delete(ks, key)
}

func (ks KeySet) Contains(key string) bool {
	_, exists := ks[key]
	return exists
}

// Standalone reports whether the key carries a standalone dependency on
// this leaf, independent of any composite it is also a member of.
func (ks KeySet) Standalone(key string) bool {
	return ks[key]
}

func (ks KeySet) Keys() []string {
	keys := make([]string, 0, len(ks))
	for key := range ks {
		keys = append(keys, key)
	}
	return keys
}

// ManagerIndex holds every predicate tracked for one manager within one
// index section. Lookups maps field__lookup -> serialized literal -> cache
// keys. Composites maps a cache key to the multi-field descriptors that must
// all hold simultaneously for that key to be considered dependent.
type ManagerIndex struct {
	Lookups    map[string]map[string]KeySet `json:"lookups"`
	Composites map[string][]string          `json:"composites,omitempty"`
}

func NewManagerIndex() *ManagerIndex {
	return &ManagerIndex{
		Lookups: make(map[string]map[string]KeySet),
	}
}

func (mi *ManagerIndex) Empty() bool {
	return len(mi.Lookups) == 0 && len(mi.Composites) == 0
}

// DependencyIndex is the persisted reverse index from predicates to the
// cache keys whose computation depended on them. Both sections are always
// present, even when empty.
type DependencyIndex struct {
	Filter  map[string]*ManagerIndex `json:"filter"`
	Exclude map[string]*ManagerIndex `json:"exclude"`
}

func NewDependencyIndex() *DependencyIndex {
	return &DependencyIndex{
		Filter:  make(map[string]*ManagerIndex),
		Exclude: make(map[string]*ManagerIndex),
	}
}

// Section returns the manager map for an operation. Identification lookups
// live in the filter section: a direct read depends on the identifying
// fields the same way a filter does.
func (di *DependencyIndex) Section(op Operation) map[string]*ManagerIndex {
	if op == OperationExclude {
		return di.Exclude
	}
	return di.Filter
}

// Normalize repairs a partially decoded index so every consumer can assume
// a well-formed shape at any nesting depth.
func (di *DependencyIndex) Normalize() {
	if di.Filter == nil {
		di.Filter = make(map[string]*ManagerIndex)
	}
	if di.Exclude == nil {
		di.Exclude = make(map[string]*ManagerIndex)
	}
	for _, section := range []map[string]*ManagerIndex{di.Filter, di.Exclude} {
		for name, mi := range section {
			if mi == nil {
				section[name] = NewManagerIndex()
				continue
			}
			if mi.Lookups == nil {
				mi.Lookups = make(map[string]map[string]KeySet)
			}
		}
	}
}

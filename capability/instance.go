package capability

import (
	"github.com/saiset-co/sai-manager/types"
)

// DocumentInstance adapts a raw database document to the Instance accessor
// protocol for one interface class.
type DocumentInstance struct {
	manager    string
	identifier string
	data       map[string]interface{}
}

func NewDocumentInstance(manager, identifier string, data map[string]interface{}) *DocumentInstance {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &DocumentInstance{
		manager:    manager,
		identifier: identifier,
		data:       data,
	}
}

func (d *DocumentInstance) ManagerName() string {
	return d.manager
}

func (d *DocumentInstance) Identification() map[string]interface{} {
	return map[string]interface{}{
		d.identifier: d.data[d.identifier],
	}
}

func (d *DocumentInstance) Field(name string) (interface{}, bool) {
	value, exists := d.data[name]
	return value, exists
}

// Data exposes the backing document for serialization.
func (d *DocumentInstance) Data() map[string]interface{} {
	return d.data
}

var _ types.Instance = (*DocumentInstance)(nil)

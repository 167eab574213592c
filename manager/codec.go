package manager

import (
	"github.com/saiset-co/sai-manager/capability"
	"github.com/saiset-co/sai-manager/types"
)

// Cached values are stored as raw documents so the same entry survives both
// the in-memory store and a JSON round trip through redis.

func encodeDoc(instance types.Instance) map[string]interface{} {
	if instance == nil {
		return nil
	}
	if doc, ok := instance.(*capability.DocumentInstance); ok {
		return doc.Data()
	}

	data := map[string]interface{}{}
	for key, value := range instance.Identification() {
		data[key] = value
	}
	return data
}

func encodeDocs(instances []types.Instance) []map[string]interface{} {
	docs := make([]map[string]interface{}, 0, len(instances))
	for _, instance := range instances {
		docs = append(docs, encodeDoc(instance))
	}
	return docs
}

func decodeDoc(cached interface{}) (map[string]interface{}, bool) {
	switch typed := cached.(type) {
	case map[string]interface{}:
		return typed, true
	}
	return nil, false
}

func decodeDocs(cached interface{}) ([]map[string]interface{}, bool) {
	switch typed := cached.(type) {
	case []map[string]interface{}:
		return typed, true
	case []interface{}:
		docs := make([]map[string]interface{}, 0, len(typed))
		for _, item := range typed {
			doc, ok := item.(map[string]interface{})
			if !ok {
				return nil, false
			}
			docs = append(docs, doc)
		}
		return docs, true
	}
	return nil, false
}

func (m *DomainManager) instances(docs []map[string]interface{}) []types.Instance {
	instances := make([]types.Instance, 0, len(docs))
	for _, doc := range docs {
		instances = append(instances, capability.NewDocumentInstance(m.schema.Name, m.identifier, doc))
	}
	return instances
}

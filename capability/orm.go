package capability

import (
	"context"

	"github.com/saiset-co/sai-manager/depcache"
	"github.com/saiset-co/sai-manager/types"
)

func init() {
	RegisterCapability(types.CapabilityCreate, NewCreateCapability)
	RegisterCapability(types.CapabilityRead, NewReadCapability)
	RegisterCapability(types.CapabilityUpdate, NewUpdateCapability)
	RegisterCapability(types.CapabilityDelete, NewDeleteCapability)
	RegisterCapability(types.CapabilityQuery, NewQueryCapability)
	RegisterCapability(types.CapabilityHistory, NewHistoryCapability)
	RegisterCapability(types.CapabilityValidation, NewValidationCapability)
	RegisterCapability(types.CapabilityObservability, NewObservabilityCapability)
}

// ormBase carries the schema-derived configuration the document-backed
// capabilities share.
type ormBase struct {
	schema     *types.InterfaceSchema
	runtime    *types.CapabilityRuntime
	collection string
	identifier string
}

func newOrmBase(schema *types.InterfaceSchema, runtime *types.CapabilityRuntime) ormBase {
	collection, _ := schema.Attribute("collection")
	identifier, _ := schema.Attribute("identifier")

	collectionName, _ := collection.(string)
	identifierName, _ := identifier.(string)
	if identifierName == "" {
		identifierName = "internal_id"
	}

	return ormBase{
		schema:     schema,
		runtime:    runtime,
		collection: collectionName,
		identifier: identifierName,
	}
}

func (b *ormBase) RequiredAttributes() []string {
	return []string{"collection"}
}

func (b *ormBase) instance(doc map[string]interface{}) *DocumentInstance {
	return NewDocumentInstance(b.schema.Name, b.identifier, doc)
}

// trackIdentification records a direct-lookup dependency when a tracking
// scope is active on the context.
func (b *ormBase) trackIdentification(ctx context.Context, identification map[string]interface{}) {
	if !depcache.TrackingActive(ctx) {
		return
	}
	depcache.Track(ctx, b.schema.Name, types.OperationIdentification,
		depcache.EncodeDescriptor(identification))
}

func (b *ormBase) readOne(ctx context.Context, identification map[string]interface{}) (map[string]interface{}, error) {
	docs, _, err := b.runtime.Database.ReadDocuments(ctx, types.ReadDocumentsRequest{
		Collection: b.collection,
		Filter:     identification,
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, types.Errorf(types.ErrDocumentNotFound,
			"collection: %s, identification: %v", b.collection, identification)
	}
	return docs[0], nil
}

type createCapability struct {
	ormBase
}

func NewCreateCapability(schema *types.InterfaceSchema, runtime *types.CapabilityRuntime) (types.Capability, error) {
	return &createCapability{ormBase: newOrmBase(schema, runtime)}, nil
}

func (c *createCapability) Name() types.CapabilityName {
	return types.CapabilityCreate
}

func (c *createCapability) Create(ctx context.Context, payload map[string]interface{}) (types.Instance, error) {
	ids, err := c.runtime.Database.CreateDocuments(ctx, types.CreateDocumentsRequest{
		Collection: c.collection,
		Data:       []interface{}{payload},
	})
	if err != nil {
		return nil, types.WrapError(err, "failed to create document")
	}
	if len(ids) == 0 {
		return nil, types.NewError("database returned no id for created document")
	}

	doc, err := c.readOne(ctx, map[string]interface{}{"internal_id": ids[0]})
	if err != nil {
		return nil, err
	}

	return c.instance(doc), nil
}

type readCapability struct {
	ormBase
}

func NewReadCapability(schema *types.InterfaceSchema, runtime *types.CapabilityRuntime) (types.Capability, error) {
	return &readCapability{ormBase: newOrmBase(schema, runtime)}, nil
}

func (c *readCapability) Name() types.CapabilityName {
	return types.CapabilityRead
}

func (c *readCapability) Read(ctx context.Context, identification map[string]interface{}) (types.Instance, error) {
	c.trackIdentification(ctx, identification)

	doc, err := c.readOne(ctx, identification)
	if err != nil {
		return nil, err
	}

	return c.instance(doc), nil
}

type updateCapability struct {
	ormBase
}

func NewUpdateCapability(schema *types.InterfaceSchema, runtime *types.CapabilityRuntime) (types.Capability, error) {
	return &updateCapability{ormBase: newOrmBase(schema, runtime)}, nil
}

func (c *updateCapability) Name() types.CapabilityName {
	return types.CapabilityUpdate
}

func (c *updateCapability) Update(ctx context.Context, identification map[string]interface{}, payload map[string]interface{}) (types.Instance, error) {
	updated, err := c.runtime.Database.UpdateDocuments(ctx, types.UpdateDocumentsRequest{
		Collection: c.collection,
		Filter:     identification,
		Data:       map[string]interface{}{"$set": payload},
	})
	if err != nil {
		return nil, types.WrapError(err, "failed to update document")
	}
	if updated == 0 {
		return nil, types.Errorf(types.ErrDocumentNotFound,
			"collection: %s, identification: %v", c.collection, identification)
	}

	doc, err := c.readOne(ctx, identification)
	if err != nil {
		return nil, err
	}

	return c.instance(doc), nil
}

type deleteCapability struct {
	ormBase
}

func NewDeleteCapability(schema *types.InterfaceSchema, runtime *types.CapabilityRuntime) (types.Capability, error) {
	return &deleteCapability{ormBase: newOrmBase(schema, runtime)}, nil
}

func (c *deleteCapability) Name() types.CapabilityName {
	return types.CapabilityDelete
}

func (c *deleteCapability) Delete(ctx context.Context, identification map[string]interface{}) (int64, error) {
	deleted, err := c.runtime.Database.DeleteDocuments(ctx, types.DeleteDocumentsRequest{
		Collection: c.collection,
		Filter:     identification,
	})
	if err != nil {
		return 0, types.WrapError(err, "failed to delete document")
	}
	return deleted, nil
}

var (
	_ types.Creator = (*createCapability)(nil)
	_ types.Reader  = (*readCapability)(nil)
	_ types.Updater = (*updateCapability)(nil)
	_ types.Deleter = (*deleteCapability)(nil)
)

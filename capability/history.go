package capability

import (
	"context"

	"github.com/saiset-co/sai-manager/types"
)

type historyCapability struct {
	schema  *types.InterfaceSchema
	runtime *types.CapabilityRuntime
}

func NewHistoryCapability(schema *types.InterfaceSchema, runtime *types.CapabilityRuntime) (types.Capability, error) {
	if runtime.History == nil {
		return nil, types.Errorf(types.ErrCapabilityBinding,
			"interface: %s, capability: history, no history store configured", schema.Name)
	}
	return &historyCapability{schema: schema, runtime: runtime}, nil
}

func (c *historyCapability) Name() types.CapabilityName {
	return types.CapabilityHistory
}

func (c *historyCapability) RequiredAttributes() []string {
	return []string{"identifier"}
}

func (c *historyCapability) History(ctx context.Context, entityID string) ([]types.HistoryEntry, error) {
	entries, err := c.runtime.History.List(ctx, c.schema.Name, entityID)
	if err != nil {
		return nil, types.WrapError(err, "failed to list history")
	}
	return entries, nil
}

var _ types.Historian = (*historyCapability)(nil)

package capability

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/saiset-co/sai-manager/types"
)

// validationCapability checks mutation payloads against per-field rules
// declared in the schema's "validation_rules" attribute, a map of field
// name to validator tag string.
type validationCapability struct {
	schema   *types.InterfaceSchema
	validate *validator.Validate
	rules    map[string]string
}

func NewValidationCapability(schema *types.InterfaceSchema, runtime *types.CapabilityRuntime) (types.Capability, error) {
	rules := map[string]string{}
	if raw, present := schema.Attribute("validation_rules"); present {
		switch typed := raw.(type) {
		case map[string]string:
			rules = typed
		case map[string]interface{}:
			for field, tag := range typed {
				if tagStr, ok := tag.(string); ok {
					rules[field] = tagStr
				}
			}
		default:
			return nil, types.Errorf(types.ErrCapabilityBinding,
				"interface: %s, capability: validation, validation_rules must be a string map, got %T",
				schema.Name, raw)
		}
	}

	return &validationCapability{
		schema:   schema,
		validate: validator.New(),
		rules:    rules,
	}, nil
}

func (c *validationCapability) Name() types.CapabilityName {
	return types.CapabilityValidation
}

func (c *validationCapability) RequiredAttributes() []string {
	return []string{"validation_rules"}
}

func (c *validationCapability) Validate(ctx context.Context, payload map[string]interface{}) error {
	for field, tag := range c.rules {
		value, present := payload[field]
		if !present {
			if hasRequiredRule(tag) {
				return types.Errorf(types.ErrValidationFailed,
					"interface: %s, field: %s, missing required field", c.schema.Name, field)
			}
			continue
		}

		if err := c.validate.VarCtx(ctx, value, tag); err != nil {
			return types.Errorf(types.ErrValidationFailed,
				"interface: %s, field: %s, rule: %s, error: %v", c.schema.Name, field, tag, err)
		}
	}

	return nil
}

func hasRequiredRule(tag string) bool {
	for _, part := range strings.Split(tag, ",") {
		if strings.TrimSpace(part) == "required" {
			return true
		}
	}
	return false
}

var _ types.Validator = (*validationCapability)(nil)

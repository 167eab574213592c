package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-manager/database"
	"github.com/saiset-co/sai-manager/types"
)

func newTestRuntime(t *testing.T) *types.CapabilityRuntime {
	t.Helper()

	db, err := database.NewMemoryDB(context.Background(), zap.NewNop(), &types.DatabaseConfig{
		Enabled: true,
		Type:    "memory",
	}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, db.Start())
	t.Cleanup(func() { _ = db.Stop() })

	return &types.CapabilityRuntime{
		Logger:   zap.NewNop(),
		Database: db,
	}
}

func crudSchema(name string) *types.InterfaceSchema {
	return &types.InterfaceSchema{
		Name:       name,
		Collection: name,
		Identifier: "email",
		Bundles: []types.CapabilityName{
			types.CapabilityCreate,
			types.CapabilityRead,
			types.CapabilityUpdate,
			types.CapabilityDelete,
		},
	}
}

func TestNewRegistry_NilSchema(t *testing.T) {
	_, err := NewRegistry(nil, nil)
	require.ErrorIs(t, err, types.ErrSchemaIsNil)
}

func TestRegistry_BuildsDeclaredBundles(t *testing.T) {
	registry, err := NewRegistry(crudSchema("users"), newTestRuntime(t))
	require.NoError(t, err)

	names, err := registry.Capabilities()
	require.NoError(t, err)
	require.ElementsMatch(t, []types.CapabilityName{
		types.CapabilityCreate,
		types.CapabilityRead,
		types.CapabilityUpdate,
		types.CapabilityDelete,
	}, names)

	require.True(t, registry.Has(types.CapabilityCreate))
	require.False(t, registry.Has(types.CapabilityQuery))
}

func TestRegistry_RequireNotConfigured(t *testing.T) {
	registry, err := NewRegistry(crudSchema("users"), newTestRuntime(t))
	require.NoError(t, err)

	_, err = registry.Require(types.CapabilityQuery)
	require.ErrorIs(t, err, types.ErrCapabilityNotConfigured)
}

func TestRegistry_TypedRequire(t *testing.T) {
	registry, err := NewRegistry(crudSchema("users"), newTestRuntime(t))
	require.NoError(t, err)

	creator, err := Require[types.Creator](registry, types.CapabilityCreate)
	require.NoError(t, err)
	require.NotNil(t, creator)

	_, err = Require[types.Querier](registry, types.CapabilityCreate)
	require.ErrorIs(t, err, types.ErrCapabilityWrongType)
}

func TestRegistry_MissingRequiredAttribute(t *testing.T) {
	schema := &types.InterfaceSchema{
		Name:    "users",
		Bundles: []types.CapabilityName{types.CapabilityCreate},
		// No collection attribute.
	}
	registry, err := NewRegistry(schema, newTestRuntime(t))
	require.NoError(t, err)

	_, err = registry.Require(types.CapabilityCreate)
	require.ErrorIs(t, err, types.ErrCapabilityBinding)
}

func TestRegistry_UnknownCapability(t *testing.T) {
	schema := &types.InterfaceSchema{
		Name:       "users",
		Collection: "users",
		Bundles:    []types.CapabilityName{"teleport"},
	}
	registry, err := NewRegistry(schema, newTestRuntime(t))
	require.NoError(t, err)

	_, err = registry.Require("teleport")
	require.ErrorIs(t, err, types.ErrCapabilityTypeUnknown)
}

type stubCreator struct {
	called bool
}

func (s *stubCreator) Name() types.CapabilityName { return types.CapabilityCreate }

func (s *stubCreator) RequiredAttributes() []string { return nil }

func (s *stubCreator) Create(ctx context.Context, payload map[string]interface{}) (types.Instance, error) {
	s.called = true
	return NewDocumentInstance("users", "email", payload), nil
}

func TestRegistry_OverrideTakesPrecedence(t *testing.T) {
	stub := &stubCreator{}
	schema := crudSchema("users")
	schema.Overrides = map[types.CapabilityName]types.CapabilityCreator{
		types.CapabilityCreate: func(*types.InterfaceSchema, *types.CapabilityRuntime) (types.Capability, error) {
			return stub, nil
		},
	}

	registry, err := NewRegistry(schema, newTestRuntime(t))
	require.NoError(t, err)

	creator, err := Require[types.Creator](registry, types.CapabilityCreate)
	require.NoError(t, err)

	_, err = creator.Create(context.Background(), map[string]interface{}{"email": "a@b.c"})
	require.NoError(t, err)
	require.True(t, stub.called)
}

func TestRegistry_ObserverAbsenceIsNotError(t *testing.T) {
	registry, err := NewRegistry(crudSchema("users"), newTestRuntime(t))
	require.NoError(t, err)
	require.Nil(t, registry.Observer())
}

func TestRegistry_ObserverConfigured(t *testing.T) {
	schema := crudSchema("users")
	schema.Bundles = append(schema.Bundles, types.CapabilityObservability)

	registry, err := NewRegistry(schema, newTestRuntime(t))
	require.NoError(t, err)
	require.NotNil(t, registry.Observer())
}

func TestRegistry_HistoryRequiresStore(t *testing.T) {
	schema := &types.InterfaceSchema{
		Name:       "users",
		Collection: "users",
		Identifier: "email",
		Bundles:    []types.CapabilityName{types.CapabilityHistory},
	}
	registry, err := NewRegistry(schema, newTestRuntime(t))
	require.NoError(t, err)

	_, err = registry.Require(types.CapabilityHistory)
	require.ErrorIs(t, err, types.ErrCapabilityBinding)
}

func TestCRUDCapabilities_RoundTrip(t *testing.T) {
	ctx := context.Background()
	registry, err := NewRegistry(crudSchema("users"), newTestRuntime(t))
	require.NoError(t, err)

	creator, err := Require[types.Creator](registry, types.CapabilityCreate)
	require.NoError(t, err)

	created, err := creator.Create(ctx, map[string]interface{}{
		"email": "alice@example.com",
		"name":  "Alice",
	})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"email": "alice@example.com"}, created.Identification())

	reader, err := Require[types.Reader](registry, types.CapabilityRead)
	require.NoError(t, err)

	read, err := reader.Read(ctx, map[string]interface{}{"email": "alice@example.com"})
	require.NoError(t, err)
	name, _ := read.Field("name")
	require.Equal(t, "Alice", name)

	updater, err := Require[types.Updater](registry, types.CapabilityUpdate)
	require.NoError(t, err)

	updated, err := updater.Update(ctx,
		map[string]interface{}{"email": "alice@example.com"},
		map[string]interface{}{"name": "Alicia"})
	require.NoError(t, err)
	name, _ = updated.Field("name")
	require.Equal(t, "Alicia", name)

	deleter, err := Require[types.Deleter](registry, types.CapabilityDelete)
	require.NoError(t, err)

	deleted, err := deleter.Delete(ctx, map[string]interface{}{"email": "alice@example.com"})
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	_, err = reader.Read(ctx, map[string]interface{}{"email": "alice@example.com"})
	require.ErrorIs(t, err, types.ErrDocumentNotFound)
}

func TestReadCapability_NotFound(t *testing.T) {
	registry, err := NewRegistry(crudSchema("users"), newTestRuntime(t))
	require.NoError(t, err)

	reader, err := Require[types.Reader](registry, types.CapabilityRead)
	require.NoError(t, err)

	_, err = reader.Read(context.Background(), map[string]interface{}{"email": "nobody@example.com"})
	require.ErrorIs(t, err, types.ErrDocumentNotFound)
}

func TestUpdateCapability_NotFound(t *testing.T) {
	registry, err := NewRegistry(crudSchema("users"), newTestRuntime(t))
	require.NoError(t, err)

	updater, err := Require[types.Updater](registry, types.CapabilityUpdate)
	require.NoError(t, err)

	_, err = updater.Update(context.Background(),
		map[string]interface{}{"email": "nobody@example.com"},
		map[string]interface{}{"name": "x"})
	require.ErrorIs(t, err, types.ErrDocumentNotFound)
}

func TestValidationCapability(t *testing.T) {
	ctx := context.Background()
	schema := &types.InterfaceSchema{
		Name:       "users",
		Collection: "users",
		Bundles:    []types.CapabilityName{types.CapabilityValidation},
		Attributes: map[string]interface{}{
			"validation_rules": map[string]interface{}{
				"email": "required,email",
				"age":   "omitempty,min=0,max=150",
			},
		},
	}
	registry, err := NewRegistry(schema, newTestRuntime(t))
	require.NoError(t, err)

	validator, err := Require[types.Validator](registry, types.CapabilityValidation)
	require.NoError(t, err)

	require.NoError(t, validator.Validate(ctx, map[string]interface{}{
		"email": "a@b.c",
		"age":   30,
	}))

	err = validator.Validate(ctx, map[string]interface{}{"email": "not-an-email"})
	require.ErrorIs(t, err, types.ErrValidationFailed)

	err = validator.Validate(ctx, map[string]interface{}{"age": 30})
	require.ErrorIs(t, err, types.ErrValidationFailed, "missing required field")

	// Optional field absent is fine.
	require.NoError(t, validator.Validate(ctx, map[string]interface{}{"email": "a@b.c"}))
}

type recordingObserver struct {
	calls   []string
	results []interface{}
	errs    []error
}

func (o *recordingObserver) Name() types.CapabilityName   { return types.CapabilityObservability }
func (o *recordingObserver) RequiredAttributes() []string { return nil }

func (o *recordingObserver) BeforeOperation(operation string, target string, payload interface{}) {
	o.calls = append(o.calls, "before:"+operation+":"+target)
}

func (o *recordingObserver) AfterOperation(operation string, target string, payload interface{}, result interface{}) {
	o.calls = append(o.calls, "after:"+operation+":"+target)
	o.results = append(o.results, result)
}

func (o *recordingObserver) OnError(operation string, target string, payload interface{}, err error) {
	o.calls = append(o.calls, "error:"+operation+":"+target)
	o.errs = append(o.errs, err)
}

func observedRegistry(t *testing.T, observer *recordingObserver) *Registry {
	t.Helper()

	schema := crudSchema("users")
	schema.Bundles = append(schema.Bundles, types.CapabilityObservability)
	schema.Overrides = map[types.CapabilityName]types.CapabilityCreator{
		types.CapabilityObservability: func(*types.InterfaceSchema, *types.CapabilityRuntime) (types.Capability, error) {
			return observer, nil
		},
	}

	registry, err := NewRegistry(schema, newTestRuntime(t))
	require.NoError(t, err)
	return registry
}

func TestDispatch_ObserverWrapsSuccess(t *testing.T) {
	observer := &recordingObserver{}
	registry := observedRegistry(t, observer)

	var order []string
	result, err := Dispatch(registry, "filter", nil, func() (interface{}, error) {
		order = append(order, "handler")
		return "payload", nil
	})
	require.NoError(t, err)
	require.Equal(t, "payload", result)

	require.Equal(t, []string{"before:filter:users", "after:filter:users"}, observer.calls)
	require.Equal(t, []string{"handler"}, order, "handler runs between before and after")
	require.Equal(t, []interface{}{"payload"}, observer.results)
	require.Empty(t, observer.errs)
}

func TestDispatch_ObserverSeesErrorUnchanged(t *testing.T) {
	observer := &recordingObserver{}
	registry := observedRegistry(t, observer)

	wantErr := types.NewError("downstream failure")
	result, gotErr := Dispatch(registry, "create", nil, func() (interface{}, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, gotErr, wantErr)
	require.Nil(t, result)

	require.Equal(t, []string{"before:create:users", "error:create:users"}, observer.calls)
	require.Equal(t, []error{wantErr}, observer.errs)
	require.Empty(t, observer.results, "AfterOperation must not run on failure")
}

package directors

import (
	"testing"

	"clipdash/src/engine"
	"clipdash/src/settings"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testEnv wires the full service stack against a temp-dir catalog and
// in-memory record stores.
type testEnv struct {
	args        *settings.Arguments
	registry    *RegistryService
	connections *ConnectionManager
	crud        *CrudService
	search      *SearchService
	transfer    *TransferService
	logger      *zap.SugaredLogger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvAt(t, t.TempDir(), memoryOpener)
}

// newTestEnvAt allows sharing a data directory between two envs to
// simulate a process restart, and swapping the store opener.
func newTestEnvAt(t *testing.T, dataDir string, opener StoreOpener) *testEnv {
	t.Helper()

	logger := zap.NewNop().Sugar()
	args := &settings.Arguments{DataDir: dataDir}

	catalog, err := engine.NewCatalogStore(args.DataDir, logger)
	require.NoError(t, err)

	registry := NewRegistryService(catalog, engine.NewTemplateCatalog(), args, logger)
	connections := NewConnectionManager(registry, args, logger).WithStoreOpener(opener)
	crud := NewCrudService(connections, logger)
	search := NewSearchService(connections, crud, logger)
	transfer := NewTransferService(registry, connections, crud, logger)

	t.Cleanup(func() { connections.CloseAll() })

	return &testEnv{
		args:        args,
		registry:    registry,
		connections: connections,
		crud:        crud,
		search:      search,
		transfer:    transfer,
		logger:      logger,
	}
}

func memoryOpener(databaseID, path string, logger *zap.SugaredLogger) (*engine.StoreEngine, error) {
	return engine.OpenStoreInMemory(databaseID, logger)
}

// registerConnected registers a database from a template and connects it.
func (e *testEnv) registerConnected(t *testing.T, id, template string) {
	t.Helper()

	_, err := e.registry.Register(RegisterRequest{DatabaseID: id, Name: id, Template: template})
	require.NoError(t, err)
	_, err = e.connections.Connect(id)
	require.NoError(t, err)
}

package directors

import (
	"os"
	"sync"
	"time"

	"clipdash/src/engine"
	"clipdash/src/errs"

	"go.uber.org/zap"
)

// ServiceManager bundles the service layer and runs the operations that
// span more than one service: registration with auto-connect, and removal
// with optional backup and physical deletion.
type ServiceManager struct {
	Registry    *RegistryService
	Connections *ConnectionManager
	Crud        *CrudService
	Search      *SearchService
	Transfer    *TransferService
	logger      *zap.SugaredLogger
}

// Private instance and mutex for thread safety
var (
	instance *ServiceManager
	once     sync.Once
	mu       sync.RWMutex
)

// InitServiceManager initializes the ServiceManager singleton with services
func InitServiceManager(registry *RegistryService, connections *ConnectionManager,
	crud *CrudService, search *SearchService, transfer *TransferService,
	logger *zap.SugaredLogger) *ServiceManager {
	// Use sync.Once to ensure this only happens one time
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()

		instance = &ServiceManager{
			Registry:    registry,
			Connections: connections,
			Crud:        crud,
			Search:      search,
			Transfer:    transfer,
			logger:      logger,
		}

		if logger != nil {
			logger.Info("ServiceManager singleton initialized")
		}
	})

	return instance
}

// ResetServiceManager is useful for testing - it resets the singleton
func ResetServiceManager() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// RemoveOptions steers RemoveDatabase. BackupFirst only matters when
// DeleteUnderlyingData is set.
type RemoveOptions struct {
	DeleteUnderlyingData bool
	BackupFirst          bool
}

// RegisterDatabase registers a descriptor and, when requested, connects it
// immediately.
func (m *ServiceManager) RegisterDatabase(req RegisterRequest) (*engine.DatabaseDescriptor, error) {
	descriptor, err := m.Registry.Register(req)
	if err != nil {
		return nil, err
	}

	if req.AutoConnect {
		if _, err := m.Connections.Connect(descriptor.DatabaseID); err != nil {
			return nil, err
		}
		return m.Registry.Lookup(descriptor.DatabaseID)
	}
	return descriptor, nil
}

// RemoveDatabase removes a database: disconnect if connected, back up
// before physical deletion when both flags are set, delete the store
// directory, then drop the descriptor and its relationship edges. A
// deletion blocked by lingering handles is retried once after a short
// delay, then removal proceeds with a warning. Returns the backup document
// when one was taken.
func (m *ServiceManager) RemoveDatabase(id string, options RemoveOptions) (*engine.BackupDocument, error) {
	if _, err := m.Registry.Lookup(id); err != nil {
		return nil, err
	}

	var backup *engine.BackupDocument
	if options.DeleteUnderlyingData && options.BackupFirst {
		document, err := m.Transfer.Backup(id)
		if err != nil {
			return nil, errs.Wrap(errs.KindStorage, "could not back up database before removal", err)
		}
		backup = document
	}

	if err := m.Connections.Disconnect(id); err != nil {
		m.logger.Warnf("Error disconnecting database %s during removal: %v", id, err)
	}

	if options.DeleteUnderlyingData {
		path := m.Connections.StorePath(id)
		if err := os.RemoveAll(path); err != nil {
			m.logger.Warnf("Deletion of %s blocked, retrying once: %v", path, err)
			time.Sleep(250 * time.Millisecond)
			if err := os.RemoveAll(path); err != nil {
				m.logger.Warnf("Deletion of %s still blocked, proceeding with removal anyway: %v", path, err)
			}
		}
	}

	if err := m.Registry.RemoveDescriptor(id); err != nil {
		return backup, err
	}

	m.logger.Infof("Removed database %s (deleteData=%t, backedUp=%t)",
		id, options.DeleteUnderlyingData, backup != nil)
	return backup, nil
}

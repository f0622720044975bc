package directors

import (
	"path/filepath"
	"sync"
	"time"

	"clipdash/src/engine"
	"clipdash/src/errs"
	"clipdash/src/settings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// StoreOpener opens the physical store for a database. Tests swap it for
// an in-memory opener.
type StoreOpener func(databaseID, path string, logger *zap.SugaredLogger) (*engine.StoreEngine, error)

// ConnectionManager owns the map of active connections. It is the only
// component that mutates it; the CRUD, search and transfer services all
// hold a reference to this object instead of reaching into globals.
type ConnectionManager struct {
	registry  *RegistryService
	settings  *settings.Arguments
	logger    *zap.SugaredLogger
	openStore StoreOpener

	mu     sync.RWMutex
	active map[string]*engine.ActiveConnection
}

// NewConnectionManager creates a ConnectionManager with no active
// connections.
func NewConnectionManager(registry *RegistryService, args *settings.Arguments,
	logger *zap.SugaredLogger) *ConnectionManager {
	return &ConnectionManager{
		registry:  registry,
		settings:  args,
		logger:    logger,
		openStore: engine.OpenStore,
		active:    make(map[string]*engine.ActiveConnection),
	}
}

// WithStoreOpener overrides how physical stores are opened.
func (m *ConnectionManager) WithStoreOpener(opener StoreOpener) *ConnectionManager {
	m.openStore = opener
	return m
}

// StorePath returns where the physical store for a database lives.
func (m *ConnectionManager) StorePath(id string) string {
	return filepath.Join(m.settings.DataDir, "stores", id)
}

// Connect opens a live handle for the database, materializing any
// collections or indexes its schema declares that do not yet exist on the
// store. Connecting an already-connected database returns the existing
// handle.
func (m *ConnectionManager) Connect(id string) (*engine.StoreEngine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conn, exists := m.active[id]; exists {
		return conn.Store, nil
	}

	descriptor, err := m.registry.Lookup(id)
	if err != nil {
		return nil, err
	}

	store, err := m.openStore(id, m.StorePath(id), m.logger)
	if err != nil {
		if statusErr := m.registry.UpdateStatus(id, engine.StatusError); statusErr != nil {
			m.logger.Warnf("Could not record error status for database %s: %v", id, statusErr)
		}
		return nil, err
	}

	if err := store.Materialize(descriptor.Collections, descriptor.SchemaVersion); err != nil {
		if closeErr := store.Close(); closeErr != nil {
			m.logger.Warnf("Could not close store for database %s after failed materialize: %v", id, closeErr)
		}
		if statusErr := m.registry.UpdateStatus(id, engine.StatusError); statusErr != nil {
			m.logger.Warnf("Could not record error status for database %s: %v", id, statusErr)
		}
		return nil, err
	}

	m.active[id] = &engine.ActiveConnection{
		Descriptor:  descriptor,
		Store:       store,
		ConnectedAt: time.Now().UTC(),
	}
	if err := m.registry.UpdateStatus(id, engine.StatusActive); err != nil {
		m.logger.Warnf("Could not persist active status for database %s: %v", id, err)
	}

	m.logger.Infof("Connected database %s (%s)", descriptor.Name, id)
	return store, nil
}

// Disconnect closes the handle and flips the status to inactive. Calling
// it on an already-inactive database is a no-op.
func (m *ConnectionManager) Disconnect(id string) error {
	m.mu.Lock()
	conn, exists := m.active[id]
	if exists {
		delete(m.active, id)
	}
	m.mu.Unlock()

	if !exists {
		return nil
	}

	if err := conn.Store.Close(); err != nil {
		m.logger.Warnf("Error closing store for database %s: %v", id, err)
	}
	if err := m.registry.UpdateStatus(id, engine.StatusInactive); err != nil {
		return err
	}

	m.logger.Infof("Disconnected database %s", id)
	return nil
}

// Connection returns the active connection for id, or a connection error
// when the database is not in the active map.
func (m *ConnectionManager) Connection(id string) (*engine.ActiveConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, exists := m.active[id]
	if !exists {
		return nil, errs.Newf(errs.KindConnection, "database %q is not connected", id)
	}
	return conn, nil
}

// ActiveIDs lists the ids of every connected database.
func (m *ConnectionManager) ActiveIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}

// ReloadActive re-connects every descriptor whose persisted status is
// active. Individual failures demote that descriptor to inactive and the
// reload continues; this is the recovery path for stale status after an
// abnormal shutdown. Returns the number of databases reconnected.
func (m *ConnectionManager) ReloadActive() int {
	reconnected := 0
	for _, descriptor := range m.registry.List(ListFilter{Status: engine.StatusActive}) {
		if _, err := m.Connect(descriptor.DatabaseID); err != nil {
			m.logger.Warnf("Could not reconnect database %s, demoting to inactive: %v", descriptor.DatabaseID, err)
			if statusErr := m.registry.UpdateStatus(descriptor.DatabaseID, engine.StatusInactive); statusErr != nil {
				m.logger.Warnf("Could not demote database %s: %v", descriptor.DatabaseID, statusErr)
			}
			continue
		}
		reconnected++
	}
	m.logger.Infof("Reload reconnected %d databases", reconnected)
	return reconnected
}

// CloseAll closes every active handle on process teardown. Persisted
// statuses are left untouched so ReloadActive can restore the same set on
// the next start.
func (m *ConnectionManager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	for id, conn := range m.active {
		err = multierr.Append(err, conn.Store.Close())
		delete(m.active, id)
	}
	return err
}

// RefreshStats recomputes the descriptor's rolling usage counters from
// the live store.
func (m *ConnectionManager) RefreshStats(id string) error {
	conn, err := m.Connection(id)
	if err != nil {
		return err
	}

	var recordCount int64
	for name := range conn.Descriptor.Collections {
		count, err := conn.Store.CountCollection(name)
		if err != nil {
			return err
		}
		recordCount += count
	}
	return m.registry.UpdateStats(id, recordCount, conn.Store.Size())
}

// RefreshAllStats refreshes the counters of every connected database.
// Per-database failures are logged and skipped.
func (m *ConnectionManager) RefreshAllStats() {
	for _, id := range m.ActiveIDs() {
		if err := m.RefreshStats(id); err != nil {
			m.logger.Warnf("Could not refresh statistics for database %s: %v", id, err)
		}
	}
}

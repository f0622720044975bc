package directors

import (
	"clipdash/src/engine"
	"clipdash/src/errs"

	"go.uber.org/zap"
)

// CrudService runs schema-agnostic record operations against any
// collection of any connected database. Every method fails with a
// connection error when the target database is not in the active map.
type CrudService struct {
	connections *ConnectionManager
	logger      *zap.SugaredLogger
}

// NewCrudService creates a CrudService bound to a connection manager.
func NewCrudService(connections *ConnectionManager, logger *zap.SugaredLogger) *CrudService {
	return &CrudService{connections: connections, logger: logger}
}

// resolve returns the live store and the collection schema, enforcing the
// connected-database and known-collection preconditions shared by every
// operation.
func (s *CrudService) resolve(dbID, collection string) (*engine.StoreEngine, engine.CollectionSchema, error) {
	conn, err := s.connections.Connection(dbID)
	if err != nil {
		return nil, engine.CollectionSchema{}, err
	}
	schema, exists := conn.Descriptor.Collections[collection]
	if !exists {
		return nil, engine.CollectionSchema{}, errs.Newf(errs.KindNotFound, "collection %q not found in database %s", collection, dbID)
	}
	return conn.Store, schema, nil
}

// Create validates the record against the collection schema and persists
// it. The engine stamps created/modified and assigns the key when the
// schema uses sequential keys.
func (s *CrudService) Create(dbID, collection string, data engine.Record) (engine.Record, error) {
	store, schema, err := s.resolve(dbID, collection)
	if err != nil {
		return nil, err
	}
	if err := schema.ValidateRecord(data); err != nil {
		return nil, err
	}
	return store.Insert(collection, schema, data)
}

// Read runs a paginated, optionally index-seeded, optionally filtered
// read. Sorting applies to the captured window only.
func (s *CrudService) Read(dbID, collection string, options engine.ReadOptions) (engine.ReadResult, error) {
	store, schema, err := s.resolve(dbID, collection)
	if err != nil {
		return engine.ReadResult{}, err
	}
	return store.Scan(collection, schema, options)
}

// Get returns a single record by primary key.
func (s *CrudService) Get(dbID, collection string, id interface{}) (engine.Record, error) {
	store, _, err := s.resolve(dbID, collection)
	if err != nil {
		return nil, err
	}
	return store.Get(collection, id)
}

// Update merges the patch onto the stored record and refreshes modified.
func (s *CrudService) Update(dbID, collection string, id interface{}, patch engine.Record) (engine.Record, error) {
	store, schema, err := s.resolve(dbID, collection)
	if err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, errs.New(errs.KindValidation, "patch is empty")
	}
	return store.Update(collection, schema, id, patch)
}

// Delete removes a record. A missing id is not an error.
func (s *CrudService) Delete(dbID, collection string, id interface{}) error {
	store, schema, err := s.resolve(dbID, collection)
	if err != nil {
		return err
	}
	return store.Delete(collection, schema, id)
}

// BulkCreate persists all records in one all-or-nothing transaction: one
// invalid record leaves nothing persisted.
func (s *CrudService) BulkCreate(dbID, collection string, records []engine.Record) ([]engine.Record, error) {
	store, schema, err := s.resolve(dbID, collection)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if err := schema.ValidateRecord(rec); err != nil {
			return nil, err
		}
	}
	return store.InsertBatch(collection, schema, records)
}

// BulkDelete removes all given ids in one transaction.
func (s *CrudService) BulkDelete(dbID, collection string, ids []interface{}) error {
	store, schema, err := s.resolve(dbID, collection)
	if err != nil {
		return err
	}
	return store.DeleteBatch(collection, schema, ids)
}

// Count returns the number of records in a collection.
func (s *CrudService) Count(dbID, collection string) (int64, error) {
	store, _, err := s.resolve(dbID, collection)
	if err != nil {
		return 0, err
	}
	return store.CountCollection(collection)
}

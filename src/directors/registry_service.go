package directors

import (
	"sort"
	"strings"
	"sync"
	"time"

	"clipdash/src/engine"
	"clipdash/src/errs"
	"clipdash/src/helpers"
	"clipdash/src/settings"

	"go.uber.org/zap"
)

// RegistryService manages the persistent catalog of database descriptors
// and the relationship edges between them.
type RegistryService struct {
	store     engine.CatalogStore
	templates *engine.TemplateCatalog
	settings  *settings.Arguments
	logger    *zap.SugaredLogger

	mu            sync.RWMutex
	descriptors   map[string]*engine.DatabaseDescriptor
	relationships map[string]*engine.Relationship
}

// RegisterRequest carries everything register() needs. Either Schema or
// Template must be supplied.
type RegisterRequest struct {
	DatabaseID  string
	Name        string
	Description string
	Template    string
	Schema      map[string]engine.CollectionSchema
	Category    string
	AutoConnect bool
}

// ListFilter selects a subset of descriptors. Empty fields match
// everything; SortBy requests a deterministic order ("name" or
// "created_at"), otherwise map order applies.
type ListFilter struct {
	Category string
	Status   string
	SortBy   string
}

// NewRegistryService creates a RegistryService and loads the persisted
// catalogs into memory.
func NewRegistryService(store engine.CatalogStore, templates *engine.TemplateCatalog,
	args *settings.Arguments, logger *zap.SugaredLogger) *RegistryService {
	service := &RegistryService{
		store:         store,
		templates:     templates,
		settings:      args,
		logger:        logger,
		descriptors:   make(map[string]*engine.DatabaseDescriptor),
		relationships: make(map[string]*engine.Relationship),
	}

	descriptors, err := store.LoadDescriptors()
	if err != nil {
		logger.Warnf("Error loading descriptor catalog: %v", err)
	} else {
		service.descriptors = descriptors
		logger.Infof("Registry loaded %d database descriptors", len(descriptors))
	}

	relationships, err := store.LoadRelationships()
	if err != nil {
		logger.Warnf("Error loading relationship catalog: %v", err)
	} else {
		service.relationships = relationships
	}

	return service
}

// Templates exposes the schema template catalog.
func (s *RegistryService) Templates() *engine.TemplateCatalog {
	return s.templates
}

// Register creates a new descriptor with status inactive. The schema comes
// either from the request itself or from a named template.
func (s *RegistryService) Register(req RegisterRequest) (*engine.DatabaseDescriptor, error) {
	if req.DatabaseID == "" {
		return nil, errs.New(errs.KindValidation, "database id is empty")
	}
	if req.Name == "" {
		return nil, errs.New(errs.KindValidation, "database name is empty")
	}

	collections := req.Schema
	category := req.Category
	if len(collections) == 0 {
		if req.Template == "" {
			return nil, errs.New(errs.KindValidation, "either a schema or a template must be supplied")
		}
		template, err := s.templates.Get(req.Template)
		if err != nil {
			return nil, errs.Wrap(errs.KindValidation, "unknown template", err)
		}
		collections = make(map[string]engine.CollectionSchema, len(template.Stores))
		for name, schema := range template.Stores {
			collections[name] = schema
		}
		if category == "" {
			category = template.Category
		}
	}
	if category == "" {
		category = engine.CategoryCustom
	}

	for name, schema := range collections {
		if name == "" {
			return nil, errs.New(errs.KindValidation, "collection name is empty")
		}
		if err := schema.Validate(); err != nil {
			return nil, errs.Wrap(errs.KindValidation, "collection "+name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.descriptors[req.DatabaseID]; exists {
		return nil, errs.Newf(errs.KindConflict, "database %q already exists", req.DatabaseID)
	}

	now := time.Now().UTC()
	descriptor := &engine.DatabaseDescriptor{
		DatabaseID:    req.DatabaseID,
		Name:          req.Name,
		Description:   req.Description,
		Template:      req.Template,
		Category:      category,
		Collections:   collections,
		SchemaVersion: 1,
		Status:        engine.StatusInactive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.descriptors[req.DatabaseID] = descriptor
	if err := s.store.SaveDescriptors(s.descriptors); err != nil {
		delete(s.descriptors, req.DatabaseID)
		return nil, errs.Wrap(errs.KindStorage, "failed to persist descriptor catalog", err)
	}

	s.logger.Infof("Registered database %s (%s), category %s", descriptor.Name, descriptor.DatabaseID, descriptor.Category)
	return cloneDescriptor(descriptor), nil
}

// Lookup returns the descriptor for id.
func (s *RegistryService) Lookup(id string) (*engine.DatabaseDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	descriptor, exists := s.descriptors[id]
	if !exists {
		return nil, errs.Newf(errs.KindNotFound, "database %q not found", id)
	}
	return cloneDescriptor(descriptor), nil
}

// List returns the exact subset of descriptors matching all supplied
// filters.
func (s *RegistryService) List(filter ListFilter) []*engine.DatabaseDescriptor {
	s.mu.RLock()
	result := make([]*engine.DatabaseDescriptor, 0, len(s.descriptors))
	for _, descriptor := range s.descriptors {
		if filter.Category != "" && descriptor.Category != filter.Category {
			continue
		}
		if filter.Status != "" && descriptor.Status != filter.Status {
			continue
		}
		result = append(result, cloneDescriptor(descriptor))
	}
	s.mu.RUnlock()

	switch strings.ToLower(filter.SortBy) {
	case "name":
		sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	case "created_at":
		sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	}
	return result
}

// UpdateStatus flips the persisted lifecycle status. Called only by the
// connection manager.
func (s *RegistryService) UpdateStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	descriptor, exists := s.descriptors[id]
	if !exists {
		return errs.Newf(errs.KindNotFound, "database %q not found", id)
	}
	if descriptor.Status == status {
		return nil
	}
	descriptor.Status = status
	descriptor.UpdatedAt = time.Now().UTC()
	return s.store.SaveDescriptors(s.descriptors)
}

// UpdateStats refreshes the rolling usage counters.
func (s *RegistryService) UpdateStats(id string, recordCount, sizeBytes int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	descriptor, exists := s.descriptors[id]
	if !exists {
		return errs.Newf(errs.KindNotFound, "database %q not found", id)
	}
	descriptor.RecordCount = recordCount
	descriptor.SizeBytes = sizeBytes
	descriptor.UpdatedAt = time.Now().UTC()
	return s.store.SaveDescriptors(s.descriptors)
}

// AddCollection evolves the schema by adding a collection. The version
// bump makes the connection manager materialize it on the next connect.
func (s *RegistryService) AddCollection(id, name string, schema engine.CollectionSchema) error {
	if name == "" {
		return errs.New(errs.KindValidation, "collection name is empty")
	}
	if err := schema.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	descriptor, exists := s.descriptors[id]
	if !exists {
		return errs.Newf(errs.KindNotFound, "database %q not found", id)
	}
	if _, taken := descriptor.Collections[name]; taken {
		return errs.Newf(errs.KindConflict, "collection %q already exists in database %s", name, id)
	}

	descriptor.Collections[name] = schema
	descriptor.SchemaVersion++
	descriptor.UpdatedAt = time.Now().UTC()
	return s.store.SaveDescriptors(s.descriptors)
}

// RemoveDescriptor deletes the descriptor and every relationship edge
// referencing it. The physical store is the caller's problem.
func (s *RegistryService) RemoveDescriptor(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.descriptors[id]; !exists {
		return errs.Newf(errs.KindNotFound, "database %q not found", id)
	}

	delete(s.descriptors, id)
	if err := s.store.SaveDescriptors(s.descriptors); err != nil {
		return errs.Wrap(errs.KindStorage, "failed to persist descriptor catalog", err)
	}

	edgesRemoved := 0
	for relID, rel := range s.relationships {
		if rel.SourceDB == id || rel.TargetDB == id {
			delete(s.relationships, relID)
			edgesRemoved++
		}
	}
	if edgesRemoved > 0 {
		if err := s.store.SaveRelationships(s.relationships); err != nil {
			return errs.Wrap(errs.KindStorage, "failed to persist relationship catalog", err)
		}
		s.logger.Infof("Removed %d relationship edges referencing database %s", edgesRemoved, id)
	}
	return nil
}

// AddRelationship records a directed association between two registered
// databases.
func (s *RegistryService) AddRelationship(sourceDB, targetDB, relationshipType string) (*engine.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.descriptors[sourceDB]; !exists {
		return nil, errs.Newf(errs.KindNotFound, "source database %q not found", sourceDB)
	}
	if _, exists := s.descriptors[targetDB]; !exists {
		return nil, errs.Newf(errs.KindNotFound, "target database %q not found", targetDB)
	}

	relationship := &engine.Relationship{
		RelationshipID:   helpers.GenerateUUID(),
		SourceDB:         sourceDB,
		TargetDB:         targetDB,
		RelationshipType: relationshipType,
	}
	s.relationships[relationship.RelationshipID] = relationship
	if err := s.store.SaveRelationships(s.relationships); err != nil {
		delete(s.relationships, relationship.RelationshipID)
		return nil, errs.Wrap(errs.KindStorage, "failed to persist relationship catalog", err)
	}

	out := *relationship
	return &out, nil
}

// ListRelationships returns edges touching the given database, or every
// edge when id is empty.
func (s *RegistryService) ListRelationships(id string) []*engine.Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*engine.Relationship, 0, len(s.relationships))
	for _, rel := range s.relationships {
		if id != "" && rel.SourceDB != id && rel.TargetDB != id {
			continue
		}
		out := *rel
		result = append(result, &out)
	}
	return result
}

// cloneDescriptor copies a descriptor so callers never mutate registry
// state through a returned pointer.
func cloneDescriptor(d *engine.DatabaseDescriptor) *engine.DatabaseDescriptor {
	out := *d
	out.Collections = make(map[string]engine.CollectionSchema, len(d.Collections))
	for name, schema := range d.Collections {
		copied := schema
		copied.Indexes = append([]engine.SecondaryIndex(nil), schema.Indexes...)
		out.Collections[name] = copied
	}
	return &out
}

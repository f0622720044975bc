package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"clipdash/src/helpers"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Catalog file names under <datadir>/catalog. Three catalogs: descriptor
// records keyed by id, per-database schema/config keyed by id, and
// relationship edges.
const (
	descriptorCatalogFile   = "descriptors.bsdb"
	schemaCatalogFile       = "schemas.bsdb"
	relationshipCatalogFile = "relationships.bsdb"
)

// CatalogStore defines the interface for descriptor catalog persistence
type CatalogStore interface {
	LoadDescriptors() (map[string]*DatabaseDescriptor, error)
	SaveDescriptors(descriptors map[string]*DatabaseDescriptor) error

	LoadRelationships() (map[string]*Relationship, error)
	SaveRelationships(relationships map[string]*Relationship) error
}

// CatalogStorageEngine persists the descriptor catalog as BSON data files,
// rewritten whole on every change.
type CatalogStorageEngine struct {
	CatalogDirectory string
	logger           *zap.SugaredLogger
}

// On-disk layouts. Schemas are kept in their own catalog file keyed by
// database id; LoadDescriptors stitches them back onto the descriptors.
type descriptorCatalogDoc struct {
	Descriptors map[string]descriptorEntry `bson:"descriptors"`
}

type descriptorEntry struct {
	DatabaseID  string    `bson:"database_id"`
	Name        string    `bson:"name"`
	Description string    `bson:"description"`
	Template    string    `bson:"template"`
	Category    string    `bson:"category"`
	Status      string    `bson:"status"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
	RecordCount int64     `bson:"record_count"`
	SizeBytes   int64     `bson:"size_bytes"`
}

type schemaCatalogDoc struct {
	Schemas map[string]schemaEntry `bson:"schemas"`
}

type schemaEntry struct {
	SchemaVersion int                        `bson:"schema_version"`
	Collections   map[string]collectionEntry `bson:"collections"`
}

type collectionEntry struct {
	KeyPath       string       `bson:"key_path"`
	AutoIncrement bool         `bson:"auto_increment"`
	Indexes       []indexEntry `bson:"indexes"`
}

type indexEntry struct {
	Name       string `bson:"name"`
	KeyPath    string `bson:"key_path"`
	Unique     bool   `bson:"unique"`
	MultiEntry bool   `bson:"multi_entry"`
}

type relationshipCatalogDoc struct {
	Relationships map[string]relationshipEntry `bson:"relationships"`
}

type relationshipEntry struct {
	RelationshipID   string `bson:"relationship_id"`
	SourceDB         string `bson:"source_db"`
	TargetDB         string `bson:"target_db"`
	RelationshipType string `bson:"relationship_type"`
}

func NewCatalogStore(dataDir string, logger *zap.SugaredLogger) (*CatalogStorageEngine, error) {
	store := &CatalogStorageEngine{
		CatalogDirectory: filepath.Join(dataDir, "catalog"),
		logger:           logger,
	}

	// Ensure the catalog directory exists
	if err := os.MkdirAll(store.CatalogDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory %s: %w", store.CatalogDirectory, err)
	}

	return store, nil
}

// LoadDescriptors reads the descriptor and schema catalogs and merges them
// into full DatabaseDescriptor values.
func (c *CatalogStorageEngine) LoadDescriptors() (map[string]*DatabaseDescriptor, error) {
	descriptors := make(map[string]*DatabaseDescriptor)

	var descDoc descriptorCatalogDoc
	ok, err := c.readCatalogFile(descriptorCatalogFile, &descDoc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return descriptors, nil
	}

	var schemaDoc schemaCatalogDoc
	if _, err := c.readCatalogFile(schemaCatalogFile, &schemaDoc); err != nil {
		return nil, err
	}

	for id, entry := range descDoc.Descriptors {
		d := &DatabaseDescriptor{
			DatabaseID:  entry.DatabaseID,
			Name:        entry.Name,
			Description: entry.Description,
			Template:    entry.Template,
			Category:    entry.Category,
			Status:      entry.Status,
			CreatedAt:   entry.CreatedAt,
			UpdatedAt:   entry.UpdatedAt,
			RecordCount: entry.RecordCount,
			SizeBytes:   entry.SizeBytes,
			Collections: make(map[string]CollectionSchema),
		}

		if se, found := schemaDoc.Schemas[id]; found {
			d.SchemaVersion = se.SchemaVersion
			for name, col := range se.Collections {
				schema := CollectionSchema{
					KeyPath:       col.KeyPath,
					AutoIncrement: col.AutoIncrement,
				}
				for _, idx := range col.Indexes {
					schema.Indexes = append(schema.Indexes, SecondaryIndex(idx))
				}
				d.Collections[name] = schema
			}
		} else {
			c.logger.Warnf("Descriptor %s has no schema catalog entry", id)
		}

		descriptors[id] = d
	}

	return descriptors, nil
}

// SaveDescriptors rewrites the descriptor and schema catalog files from
// the given map.
func (c *CatalogStorageEngine) SaveDescriptors(descriptors map[string]*DatabaseDescriptor) error {
	descDoc := descriptorCatalogDoc{Descriptors: make(map[string]descriptorEntry, len(descriptors))}
	schemaDoc := schemaCatalogDoc{Schemas: make(map[string]schemaEntry, len(descriptors))}

	for id, d := range descriptors {
		descDoc.Descriptors[id] = descriptorEntry{
			DatabaseID:  d.DatabaseID,
			Name:        d.Name,
			Description: d.Description,
			Template:    d.Template,
			Category:    d.Category,
			Status:      d.Status,
			CreatedAt:   d.CreatedAt,
			UpdatedAt:   d.UpdatedAt,
			RecordCount: d.RecordCount,
			SizeBytes:   d.SizeBytes,
		}

		se := schemaEntry{
			SchemaVersion: d.SchemaVersion,
			Collections:   make(map[string]collectionEntry, len(d.Collections)),
		}
		for name, schema := range d.Collections {
			col := collectionEntry{
				KeyPath:       schema.KeyPath,
				AutoIncrement: schema.AutoIncrement,
			}
			for _, idx := range schema.Indexes {
				col.Indexes = append(col.Indexes, indexEntry(idx))
			}
			se.Collections[name] = col
		}
		schemaDoc.Schemas[id] = se
	}

	if err := c.writeCatalogFile(descriptorCatalogFile, descDoc); err != nil {
		return err
	}
	return c.writeCatalogFile(schemaCatalogFile, schemaDoc)
}

// LoadRelationships reads the relationship edge catalog.
func (c *CatalogStorageEngine) LoadRelationships() (map[string]*Relationship, error) {
	relationships := make(map[string]*Relationship)

	var doc relationshipCatalogDoc
	ok, err := c.readCatalogFile(relationshipCatalogFile, &doc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return relationships, nil
	}

	for id, entry := range doc.Relationships {
		r := Relationship(entry)
		relationships[id] = &r
	}
	return relationships, nil
}

// SaveRelationships rewrites the relationship edge catalog.
func (c *CatalogStorageEngine) SaveRelationships(relationships map[string]*Relationship) error {
	doc := relationshipCatalogDoc{Relationships: make(map[string]relationshipEntry, len(relationships))}
	for id, r := range relationships {
		doc.Relationships[id] = relationshipEntry(*r)
	}
	return c.writeCatalogFile(relationshipCatalogFile, doc)
}

// readCatalogFile memory maps the catalog file and decodes its BSON
// content into out. Returns false when the file does not exist yet.
func (c *CatalogStorageEngine) readCatalogFile(fileName string, out interface{}) (bool, error) {
	fullPath := filepath.Join(c.CatalogDirectory, fileName)
	if !helpers.FileExists(fullPath) {
		return false, nil
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return false, fmt.Errorf("error opening catalog file %s: %w", fileName, err)
	}
	defer file.Close()

	// Get the file size
	stat, err := file.Stat()
	if err != nil {
		return false, fmt.Errorf("failed to get file stats: %w", err)
	}
	fileSize := int(stat.Size())

	// An empty catalog file is treated the same as a missing one
	if fileSize == 0 {
		return false, nil
	}

	// Memory map the file
	data, err := unix.Mmap(int(file.Fd()), 0, fileSize, syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return false, fmt.Errorf("failed to memory map file: %w", err)
	}
	defer unix.Munmap(data)

	if err := bson.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("error decoding catalog data from %s: %w", fileName, err)
	}

	return true, nil
}

// writeCatalogFile encodes doc to BSON and rewrites the catalog file.
func (c *CatalogStorageEngine) writeCatalogFile(fileName string, doc interface{}) error {
	fullPath := filepath.Join(c.CatalogDirectory, fileName)

	encoded, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("error encoding catalog data: %w", err)
	}

	file, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("error opening catalog file %s: %w", fileName, err)
	}
	defer file.Close()

	fileLen, err := file.Write(encoded)
	if err != nil {
		return fmt.Errorf("error writing to catalog file %s: %w", fileName, err)
	}
	if fileLen != len(encoded) {
		return fmt.Errorf("error writing to catalog file %s: wrote %d bytes, expected %d", fileName, fileLen, len(encoded))
	}

	return nil
}

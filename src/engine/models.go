package engine

import (
	"time"

	"clipdash/src/errs"
)

// Lifecycle status of a registered database.
const (
	StatusInactive = "inactive"
	StatusActive   = "active"
	StatusError    = "error"
)

// Categories group databases for the dashboard filters.
const (
	CategorySystem   = "system"
	CategoryBrowser  = "browser"
	CategoryPersonal = "personal"
	CategoryCustom   = "custom"
)

// Bookkeeping fields the store engine stamps onto every record on write.
const (
	FieldCreated  = "created"
	FieldModified = "modified"
)

// Fields added to records copied into the unified collection by merge.
const (
	FieldSource           = "source"
	FieldUnifiedContent   = "unified_content"
	FieldUnifiedTimestamp = "unified_timestamp"
	FieldContentType      = "content_type"
)

type DatabaseDescriptor struct {
	// DatabaseID is the unique identifier for the database.
	DatabaseID string

	// Name is the display name of the database.
	Name string

	// Description is the free-text description of the database.
	Description string

	// Template is the name of the schema template the database was
	// instantiated from, empty for ad-hoc schemas.
	Template string

	// Category is one of the Category* constants.
	Category string

	// Collections maps collection name to its schema.
	Collections map[string]CollectionSchema

	// SchemaVersion is bumped when a collection is added; the change is
	// materialized lazily on the next connect.
	SchemaVersion int

	// Status is one of the Status* constants. It is persisted, so a
	// crashed process leaves stale "active" entries behind for
	// ReloadActive to repair.
	Status string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Rolling usage counters, refreshed by the statistics job.
	RecordCount int64
	SizeBytes   int64
}

type CollectionSchema struct {
	// KeyPath is the name of the primary key field.
	KeyPath string

	// AutoIncrement selects engine-assigned sequential integer keys.
	// When false the caller must supply the key field.
	AutoIncrement bool

	// Indexes are the secondary indexes maintained for the collection.
	Indexes []SecondaryIndex
}

type SecondaryIndex struct {
	// Name is the index name, unique within the collection.
	Name string

	// KeyPath is the indexed field.
	KeyPath string

	// Unique rejects two records with the same indexed value.
	Unique bool

	// MultiEntry indexes every element of an array-valued field.
	MultiEntry bool
}

// Record is an open-ended field map belonging to one collection. The shape
// is validated against the collection schema at the CRUD boundary rather
// than trusting the caller.
type Record map[string]interface{}

// Clone returns a shallow copy so callers never share map references with
// the engine.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

type Relationship struct {
	// RelationshipID is the unique identifier for the relationship.
	RelationshipID string
	// SourceDB is the id of the source database.
	SourceDB string
	// TargetDB is the id of the target database.
	TargetDB string
	// RelationshipType describes the association (e.g. "derived-from").
	RelationshipType string
}

// ActiveConnection pairs a descriptor with a live store handle. It exists
// only in the connection manager's map, never on disk.
type ActiveConnection struct {
	Descriptor  *DatabaseDescriptor
	Store       *StoreEngine
	ConnectedAt time.Time
}

// BackupDocument is the portable serialization of one database: descriptor
// metadata plus every record of every collection.
type BackupDocument struct {
	Version   int                 `json:"version"`
	Metadata  *DatabaseDescriptor `json:"metadata"`
	Data      map[string][]Record `json:"data"`
	Timestamp time.Time           `json:"timestamp"`
}

// BackupFormatVersion identifies the current backup document layout.
const BackupFormatVersion = 1

// Validate checks schema-level invariants: a key path must be set and
// index names must be unique within the collection.
func (s CollectionSchema) Validate() error {
	if s.KeyPath == "" {
		return errs.New(errs.KindValidation, "collection schema has no key path")
	}
	seen := make(map[string]bool, len(s.Indexes))
	for _, idx := range s.Indexes {
		if idx.Name == "" || idx.KeyPath == "" {
			return errs.Newf(errs.KindValidation, "index on %q must have a name and key path", idx.KeyPath)
		}
		if seen[idx.Name] {
			return errs.Newf(errs.KindValidation, "duplicate index name %q", idx.Name)
		}
		seen[idx.Name] = true
	}
	return nil
}

// ValidateRecord checks a caller-supplied record against the schema before
// it is written. Engine-assigned keys may be absent; caller-supplied keys
// must be present. Field values must be of a storable kind.
func (s CollectionSchema) ValidateRecord(rec Record) error {
	if rec == nil {
		return errs.New(errs.KindValidation, "record is nil")
	}
	if !s.AutoIncrement {
		if _, ok := rec[s.KeyPath]; !ok {
			return errs.Newf(errs.KindValidation, "record is missing key field %q", s.KeyPath)
		}
	}
	for name, value := range rec {
		if !storableValue(value) {
			return errs.Newf(errs.KindValidation, "field %q has unsupported value type %T", name, value)
		}
	}
	return nil
}

// storableValue reports whether v is one of the value kinds the engine
// persists: string, bool, integer, float, timestamp, list, nested map.
func storableValue(v interface{}) bool {
	switch vv := v.(type) {
	case nil, string, bool,
		int, int32, int64, float32, float64,
		time.Time:
		return true
	case []interface{}:
		for _, elem := range vv {
			if !storableValue(elem) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		for _, elem := range vv {
			if !storableValue(elem) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

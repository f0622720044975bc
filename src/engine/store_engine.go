package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"clipdash/src/errs"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// Key prefixes for the per-database BadgerDB store.
// Single-byte prefixes, components separated by 0x00:
//
//	0x01 | collection | 0x00 | pk                                  -> JSON(record)
//	0x02 | collection | 0x00 | index | 0x00 | value | 0x00 | pk    -> pk
//	0x03 | collection                                              -> last assigned sequence
//	0x04                                                           -> JSON(manifest)
const (
	prefixRecord   = byte(0x01)
	prefixIndex    = byte(0x02)
	prefixSequence = byte(0x03)
	prefixManifest = byte(0x04)

	keySeparator = byte(0x00)
)

// StoreEngine is the physical storage handle for one logical database.
// Every mutating call runs inside a single Badger transaction scoped to
// one collection, which is the only atomicity the registry offers.
type StoreEngine struct {
	DatabaseID string
	db         *badger.DB
	logger     *zap.SugaredLogger
}

// storeManifest records what has been materialized on this store, so
// Materialize stays idempotent across connects.
type storeManifest struct {
	SchemaVersion int                           `json:"schema_version"`
	Collections   map[string]manifestCollection `json:"collections"`
}

type manifestCollection struct {
	KeyPath       string                   `json:"key_path"`
	AutoIncrement bool                     `json:"auto_increment"`
	Indexes       map[string]manifestIndex `json:"indexes"`
}

type manifestIndex struct {
	KeyPath    string `json:"key_path"`
	Unique     bool   `json:"unique"`
	MultiEntry bool   `json:"multi_entry"`
}

// OpenStore opens (or creates) the physical store for a database at path.
func OpenStore(databaseID, path string, logger *zap.SugaredLogger) (*StoreEngine, error) {
	opts := badger.DefaultOptions(path)
	// Badger's own logger is noisy; all logging goes through zap
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, fmt.Sprintf("failed to open store for database %s", databaseID), err)
	}

	return &StoreEngine{DatabaseID: databaseID, db: db, logger: logger}, nil
}

// OpenStoreInMemory opens a store that never touches disk. Used by tests.
func OpenStoreInMemory(databaseID string, logger *zap.SugaredLogger) (*StoreEngine, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, "failed to open in-memory store", err)
	}
	return &StoreEngine{DatabaseID: databaseID, db: db, logger: logger}, nil
}

// Close closes the underlying Badger instance.
func (s *StoreEngine) Close() error {
	if err := s.db.Close(); err != nil {
		return errs.Wrap(errs.KindStorage, fmt.Sprintf("failed to close store for database %s", s.DatabaseID), err)
	}
	return nil
}

// ── Key construction ───────────────────────────────────────────────────

func recordKey(collection, pk string) []byte {
	key := make([]byte, 0, 2+len(collection)+len(pk))
	key = append(key, prefixRecord)
	key = append(key, collection...)
	key = append(key, keySeparator)
	key = append(key, pk...)
	return key
}

func recordPrefix(collection string) []byte {
	key := make([]byte, 0, 2+len(collection))
	key = append(key, prefixRecord)
	key = append(key, collection...)
	key = append(key, keySeparator)
	return key
}

func indexEntryKey(collection, index, value, pk string) []byte {
	key := indexValuePrefix(collection, index, value)
	key = append(key, pk...)
	return key
}

func indexValuePrefix(collection, index, value string) []byte {
	key := make([]byte, 0, 4+len(collection)+len(index)+len(value))
	key = append(key, prefixIndex)
	key = append(key, collection...)
	key = append(key, keySeparator)
	key = append(key, index...)
	key = append(key, keySeparator)
	key = append(key, value...)
	key = append(key, keySeparator)
	return key
}

func indexCollectionPrefix(collection string) []byte {
	key := make([]byte, 0, 2+len(collection))
	key = append(key, prefixIndex)
	key = append(key, collection...)
	key = append(key, keySeparator)
	return key
}

func sequenceKey(collection string) []byte {
	key := make([]byte, 0, 1+len(collection))
	key = append(key, prefixSequence)
	key = append(key, collection...)
	return key
}

func manifestKey() []byte {
	return []byte{prefixManifest}
}

// formatIntKey biases a signed key into unsigned space before zero
// padding, so Badger's byte order matches numeric order for negative
// keys too.
func formatIntKey(n int64) string {
	return fmt.Sprintf("%020d", uint64(n)^(1<<63))
}

// keyString canonicalizes a primary key value.
func keyString(v interface{}) (string, error) {
	switch k := v.(type) {
	case string:
		if k == "" {
			return "", errs.New(errs.KindValidation, "primary key is empty")
		}
		return k, nil
	case int:
		return formatIntKey(int64(k)), nil
	case int32:
		return formatIntKey(int64(k)), nil
	case int64:
		return formatIntKey(k), nil
	case float64:
		// JSON round-trips integer keys as float64
		if k == math.Trunc(k) {
			return formatIntKey(int64(k)), nil
		}
		return "", errs.Newf(errs.KindValidation, "primary key %v is not an integer", k)
	default:
		return "", errs.Newf(errs.KindValidation, "primary key has unsupported type %T", v)
	}
}

// stringValue canonicalizes a field value for index keys and lexical
// comparison.
func stringValue(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case int:
		return fmt.Sprintf("%020d", s)
	case int32:
		return fmt.Sprintf("%020d", s)
	case int64:
		return fmt.Sprintf("%020d", s)
	case float32:
		return stringValue(float64(s))
	case float64:
		if s == math.Trunc(s) && math.Abs(s) < 1e18 {
			return fmt.Sprintf("%020d", int64(s))
		}
		return strconv.FormatFloat(s, 'g', -1, 64)
	case time.Time:
		return s.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// indexValues returns the canonical index entry values a record produces
// for one secondary index. Missing fields produce no entries; multi-entry
// indexes produce one entry per array element.
func indexValues(idx SecondaryIndex, rec Record) []string {
	raw, ok := rec[idx.KeyPath]
	if !ok || raw == nil {
		return nil
	}
	if idx.MultiEntry {
		if list, isList := raw.([]interface{}); isList {
			values := make([]string, 0, len(list))
			for _, elem := range list {
				values = append(values, stringValue(elem))
			}
			return values
		}
	}
	return []string{stringValue(raw)}
}

func encodeRecord(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, "failed to encode record", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errs.Wrap(errs.KindStorage, "failed to decode record", err)
	}
	return rec, nil
}

// ── Schema materialization ─────────────────────────────────────────────

// Materialize creates any collections and secondary indexes declared in
// the schema that do not yet exist on this store. Safe to call on an
// already-materialized store; index additions backfill entries for
// existing records.
func (s *StoreEngine) Materialize(collections map[string]CollectionSchema, schemaVersion int) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		manifest, err := s.readManifest(txn)
		if err != nil {
			return err
		}
		if manifest.Collections == nil {
			manifest.Collections = make(map[string]manifestCollection)
		}

		changed := manifest.SchemaVersion != schemaVersion

		for name, schema := range collections {
			existing, found := manifest.Collections[name]
			if !found {
				existing = manifestCollection{
					KeyPath:       schema.KeyPath,
					AutoIncrement: schema.AutoIncrement,
					Indexes:       make(map[string]manifestIndex),
				}
				changed = true
			}
			if existing.Indexes == nil {
				existing.Indexes = make(map[string]manifestIndex)
			}

			for _, idx := range schema.Indexes {
				if _, haveIdx := existing.Indexes[idx.Name]; haveIdx {
					continue
				}
				// New index on a possibly populated collection: backfill
				if err := s.backfillIndex(txn, name, schema, idx); err != nil {
					return err
				}
				existing.Indexes[idx.Name] = manifestIndex{
					KeyPath:    idx.KeyPath,
					Unique:     idx.Unique,
					MultiEntry: idx.MultiEntry,
				}
				changed = true
			}

			manifest.Collections[name] = existing
		}

		if !changed {
			return nil
		}
		manifest.SchemaVersion = schemaVersion
		return s.writeManifest(txn, manifest)
	})
	if err != nil {
		return errs.Wrap(errs.KindStorage, fmt.Sprintf("failed to materialize schema for database %s", s.DatabaseID), err)
	}
	return nil
}

func (s *StoreEngine) readManifest(txn *badger.Txn) (storeManifest, error) {
	var manifest storeManifest
	item, err := txn.Get(manifestKey())
	if err == badger.ErrKeyNotFound {
		return manifest, nil
	}
	if err != nil {
		return manifest, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &manifest)
	})
	return manifest, err
}

func (s *StoreEngine) writeManifest(txn *badger.Txn, manifest storeManifest) error {
	data, err := json.Marshal(manifest)
	if err != nil {
		return err
	}
	return txn.Set(manifestKey(), data)
}

// backfillIndex writes index entries for every record already present in
// the collection.
func (s *StoreEngine) backfillIndex(txn *badger.Txn, collection string, schema CollectionSchema, idx SecondaryIndex) error {
	prefix := recordPrefix(collection)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		pk := string(item.Key()[len(prefix):])
		var rec Record
		err := item.Value(func(val []byte) error {
			var e error
			rec, e = decodeRecord(val)
			return e
		})
		if err != nil {
			return err
		}
		for _, value := range indexValues(idx, rec) {
			if err := txn.Set(indexEntryKey(collection, idx.Name, value, pk), []byte(pk)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ── Record operations ──────────────────────────────────────────────────

// Insert persists one record in its own transaction. The engine assigns
// sequential integer keys when the schema says so, stamps created and
// modified, and maintains every secondary index.
func (s *StoreEngine) Insert(collection string, schema CollectionSchema, rec Record) (Record, error) {
	var stored Record
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		stored, err = s.insertInTxn(txn, collection, schema, rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// InsertBatch persists all records in a single transaction. A failure
// partway aborts the whole batch with no partial writes visible.
func (s *StoreEngine) InsertBatch(collection string, schema CollectionSchema, recs []Record) ([]Record, error) {
	stored := make([]Record, 0, len(recs))
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, rec := range recs {
			out, err := s.insertInTxn(txn, collection, schema, rec)
			if err != nil {
				return err
			}
			stored = append(stored, out)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *StoreEngine) insertInTxn(txn *badger.Txn, collection string, schema CollectionSchema, rec Record) (Record, error) {
	stored := rec.Clone()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	stored[FieldCreated] = now
	stored[FieldModified] = now

	var pk string
	if raw, ok := stored[schema.KeyPath]; ok && raw != nil {
		var err error
		pk, err = keyString(raw)
		if err != nil {
			return nil, err
		}
	} else {
		if !schema.AutoIncrement {
			return nil, errs.Newf(errs.KindValidation, "record is missing key field %q", schema.KeyPath)
		}
		seq, err := s.nextSequence(txn, collection)
		if err != nil {
			return nil, err
		}
		stored[schema.KeyPath] = seq
		pk = formatIntKey(seq)
	}

	key := recordKey(collection, pk)
	if _, err := txn.Get(key); err == nil {
		return nil, errs.Newf(errs.KindConflict, "record %s already exists in collection %s", pk, collection)
	} else if err != badger.ErrKeyNotFound {
		return nil, errs.Wrap(errs.KindStorage, "primary key lookup failed", err)
	}

	for _, idx := range schema.Indexes {
		values := indexValues(idx, stored)
		if idx.Unique {
			for _, value := range values {
				if err := s.checkUnique(txn, collection, idx.Name, value, pk); err != nil {
					return nil, err
				}
			}
		}
		for _, value := range values {
			if err := txn.Set(indexEntryKey(collection, idx.Name, value, pk), []byte(pk)); err != nil {
				return nil, errs.Wrap(errs.KindStorage, "failed to write index entry", err)
			}
		}
	}

	data, err := encodeRecord(stored)
	if err != nil {
		return nil, err
	}
	if err := txn.Set(key, data); err != nil {
		return nil, errs.Wrap(errs.KindStorage, "failed to write record", err)
	}
	return stored, nil
}

// nextSequence increments and returns the collection's key generator.
func (s *StoreEngine) nextSequence(txn *badger.Txn, collection string) (int64, error) {
	var last int64
	item, err := txn.Get(sequenceKey(collection))
	if err == nil {
		err = item.Value(func(val []byte) error {
			var e error
			last, e = strconv.ParseInt(string(val), 10, 64)
			return e
		})
		if err != nil {
			return 0, errs.Wrap(errs.KindStorage, "failed to read key sequence", err)
		}
	} else if err != badger.ErrKeyNotFound {
		return 0, errs.Wrap(errs.KindStorage, "failed to read key sequence", err)
	}

	next := last + 1
	if err := txn.Set(sequenceKey(collection), []byte(strconv.FormatInt(next, 10))); err != nil {
		return 0, errs.Wrap(errs.KindStorage, "failed to advance key sequence", err)
	}
	return next, nil
}

// checkUnique rejects a value already present under a unique index for a
// different primary key.
func (s *StoreEngine) checkUnique(txn *badger.Txn, collection, index, value, pk string) error {
	prefix := indexValuePrefix(collection, index, value)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		existing := string(it.Item().Key()[len(prefix):])
		if existing != pk {
			return errs.Newf(errs.KindConflict, "unique index %s already has value %q", index, value)
		}
	}
	return nil
}

// Get returns one record by primary key.
func (s *StoreEngine) Get(collection string, key interface{}) (Record, error) {
	pk, err := keyString(key)
	if err != nil {
		return nil, err
	}

	var rec Record
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(collection, pk))
		if err == badger.ErrKeyNotFound {
			return errs.Newf(errs.KindNotFound, "record %s not found in collection %s", pk, collection)
		}
		if err != nil {
			return errs.Wrap(errs.KindStorage, "record lookup failed", err)
		}
		return item.Value(func(val []byte) error {
			var e error
			rec, e = decodeRecord(val)
			return e
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Update merges patch onto the existing record, refreshes modified, and
// rewrites affected index entries, all in one transaction.
func (s *StoreEngine) Update(collection string, schema CollectionSchema, key interface{}, patch Record) (Record, error) {
	pk, err := keyString(key)
	if err != nil {
		return nil, err
	}

	var updated Record
	err = s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(collection, pk))
		if err == badger.ErrKeyNotFound {
			return errs.Newf(errs.KindNotFound, "record %s not found in collection %s", pk, collection)
		}
		if err != nil {
			return errs.Wrap(errs.KindStorage, "record lookup failed", err)
		}

		var existing Record
		err = item.Value(func(val []byte) error {
			var e error
			existing, e = decodeRecord(val)
			return e
		})
		if err != nil {
			return err
		}

		updated = existing.Clone()
		for name, value := range patch {
			if name == schema.KeyPath {
				if stringValueEqual(existing[name], value) {
					continue
				}
				return errs.Newf(errs.KindValidation, "cannot change key field %q", name)
			}
			if name == FieldCreated {
				continue
			}
			updated[name] = value
		}
		updated[FieldModified] = time.Now().UTC().Format(time.RFC3339Nano)

		// Rewrite index entries whose values changed
		for _, idx := range schema.Indexes {
			oldValues := indexValues(idx, existing)
			newValues := indexValues(idx, updated)
			if idx.Unique {
				for _, value := range newValues {
					if err := s.checkUnique(txn, collection, idx.Name, value, pk); err != nil {
						return err
					}
				}
			}
			for _, value := range oldValues {
				if err := txn.Delete(indexEntryKey(collection, idx.Name, value, pk)); err != nil {
					return errs.Wrap(errs.KindStorage, "failed to delete index entry", err)
				}
			}
			for _, value := range newValues {
				if err := txn.Set(indexEntryKey(collection, idx.Name, value, pk), []byte(pk)); err != nil {
					return errs.Wrap(errs.KindStorage, "failed to write index entry", err)
				}
			}
		}

		data, err := encodeRecord(updated)
		if err != nil {
			return err
		}
		return txn.Set(recordKey(collection, pk), data)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func stringValueEqual(a, b interface{}) bool {
	return stringValue(a) == stringValue(b)
}

// Delete removes one record and its index entries. A missing record is
// not an error.
func (s *StoreEngine) Delete(collection string, schema CollectionSchema, key interface{}) error {
	pk, err := keyString(key)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return s.deleteInTxn(txn, collection, schema, pk)
	})
}

// DeleteBatch removes all given records in a single transaction.
func (s *StoreEngine) DeleteBatch(collection string, schema CollectionSchema, keys []interface{}) error {
	pks := make([]string, 0, len(keys))
	for _, key := range keys {
		pk, err := keyString(key)
		if err != nil {
			return err
		}
		pks = append(pks, pk)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, pk := range pks {
			if err := s.deleteInTxn(txn, collection, schema, pk); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *StoreEngine) deleteInTxn(txn *badger.Txn, collection string, schema CollectionSchema, pk string) error {
	item, err := txn.Get(recordKey(collection, pk))
	if err == badger.ErrKeyNotFound {
		// Idempotent delete
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.KindStorage, "record lookup failed", err)
	}

	var existing Record
	err = item.Value(func(val []byte) error {
		var e error
		existing, e = decodeRecord(val)
		return e
	})
	if err != nil {
		return err
	}

	for _, idx := range schema.Indexes {
		for _, value := range indexValues(idx, existing) {
			if err := txn.Delete(indexEntryKey(collection, idx.Name, value, pk)); err != nil {
				return errs.Wrap(errs.KindStorage, "failed to delete index entry", err)
			}
		}
	}
	if err := txn.Delete(recordKey(collection, pk)); err != nil {
		return errs.Wrap(errs.KindStorage, "failed to delete record", err)
	}
	return nil
}

// Scan runs a paginated read. When an index start is given the iteration
// covers only entries with that index value; otherwise the whole
// collection is scanned in key order. The filter counts toward Total
// whether or not the record lands inside the page window; sorting applies
// to the captured window only.
func (s *StoreEngine) Scan(collection string, schema CollectionSchema, options ReadOptions) (ReadResult, error) {
	result := ReadResult{Data: []Record{}}

	collect := func(rec Record) {
		if options.Filter != nil && !options.Filter(rec) {
			return
		}
		result.Total++
		if result.Total <= options.Offset {
			return
		}
		if options.Limit > 0 && len(result.Data) >= options.Limit {
			return
		}
		result.Data = append(result.Data, rec)
	}

	err := s.db.View(func(txn *badger.Txn) error {
		if options.IndexName != "" {
			idx, found := findIndex(schema, options.IndexName)
			if !found {
				return errs.Newf(errs.KindValidation, "collection %s has no index %q", collection, options.IndexName)
			}
			return s.scanIndex(txn, collection, idx, options.IndexValue, collect)
		}
		return s.scanAll(txn, collection, collect)
	})
	if err != nil {
		return ReadResult{}, err
	}

	sortWindow(result.Data, options.SortBy, options.SortOrder)
	result.HasMore = result.Total > options.Offset+len(result.Data)
	return result, nil
}

func findIndex(schema CollectionSchema, name string) (SecondaryIndex, bool) {
	for _, idx := range schema.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return SecondaryIndex{}, false
}

func (s *StoreEngine) scanAll(txn *badger.Txn, collection string, collect func(Record)) error {
	prefix := recordPrefix(collection)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var rec Record
		err := it.Item().Value(func(val []byte) error {
			var e error
			rec, e = decodeRecord(val)
			return e
		})
		if err != nil {
			return err
		}
		collect(rec)
	}
	return nil
}

func (s *StoreEngine) scanIndex(txn *badger.Txn, collection string, idx SecondaryIndex, indexValue interface{}, collect func(Record)) error {
	prefix := indexValuePrefix(collection, idx.Name, stringValue(indexValue))
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var pk string
		err := it.Item().Value(func(val []byte) error {
			pk = string(val)
			return nil
		})
		if err != nil {
			return err
		}

		item, err := txn.Get(recordKey(collection, pk))
		if err == badger.ErrKeyNotFound {
			// Dangling index entry; skip rather than abort the scan
			s.logger.Warnf("Index %s points at missing record %s in collection %s", idx.Name, pk, collection)
			continue
		}
		if err != nil {
			return errs.Wrap(errs.KindStorage, "record lookup failed", err)
		}

		var rec Record
		err = item.Value(func(val []byte) error {
			var e error
			rec, e = decodeRecord(val)
			return e
		})
		if err != nil {
			return err
		}
		collect(rec)
	}
	return nil
}

// Clear removes every record and index entry of one collection in a
// single transaction, returning the number of records removed. The key
// generator is deliberately left alone so keys are never reused.
func (s *StoreEngine) Clear(collection string) (int, error) {
	removed := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, prefix := range [][]byte{recordPrefix(collection), indexCollectionPrefix(collection)} {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false

			it := txn.NewIterator(opts)
			var keys [][]byte
			for it.Rewind(); it.Valid(); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			it.Close()

			for _, key := range keys {
				if err := txn.Delete(key); err != nil {
					return errs.Wrap(errs.KindStorage, "failed to clear collection", err)
				}
				if key[0] == prefixRecord {
					removed++
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// DumpCollection returns every record of a collection in key order.
// Read-only; used by backup and export.
func (s *StoreEngine) DumpCollection(collection string) ([]Record, error) {
	records := []Record{}
	err := s.db.View(func(txn *badger.Txn) error {
		return s.scanAll(txn, collection, func(rec Record) {
			records = append(records, rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// CountCollection returns the number of records in one collection.
func (s *StoreEngine) CountCollection(collection string) (int64, error) {
	var count int64
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := recordPrefix(collection)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, errs.Wrap(errs.KindStorage, "failed to count collection", err)
	}
	return count, nil
}

// Size returns the store's on-disk footprint in bytes.
func (s *StoreEngine) Size() int64 {
	lsm, vlog := s.db.Size()
	return lsm + vlog
}

package directors

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"clipdash/src/engine"
	"clipdash/src/errs"

	"go.uber.org/zap"
)

// Unified analysis target. Merge auto-registers this database when it does
// not exist yet.
const (
	UnifiedDatabaseID   = "analysis"
	UnifiedDatabaseName = "Unified Analysis"
	UnifiedCollection   = "unified_data"
	unifiedTemplateName = "analysis"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ExportOptions selects the serialization format and, optionally, a subset
// of collections. Empty Collections means all of them.
type ExportOptions struct {
	Format      string
	Collections []string
}

// ImportOptions steers a restore. When Collection is set only that
// collection of the document is imported. Overwrite clears each target
// collection (one transaction) before writing.
type ImportOptions struct {
	Overwrite  bool
	Collection string
}

// MergeOptions selects which source kinds feed the unified collection.
type MergeOptions struct {
	IncludeClipboard bool
	IncludeBookmarks bool
	IncludeHistory   bool
}

// MergeSourceReport records the outcome of one source collection in a
// merge, so callers can see which sub-operations succeeded when the merge
// as a whole is not atomic.
type MergeSourceReport struct {
	DatabaseID string `json:"database_id"`
	Collection string `json:"collection"`
	Copied     int    `json:"copied"`
	Failed     int    `json:"failed"`
}

// MergeReport is the per-source progress ledger of one merge run.
// MergedCount is the sum of Copied over all sources.
type MergeReport struct {
	MergedCount int                 `json:"merged_count"`
	Sources     []MergeSourceReport `json:"sources"`
}

// TransferService serializes databases out (backup/export), restores them
// (import) and folds multiple source databases into the unified analysis
// collection (merge).
type TransferService struct {
	registry    *RegistryService
	connections *ConnectionManager
	crud        *CrudService
	logger      *zap.SugaredLogger
}

// NewTransferService creates a TransferService.
func NewTransferService(registry *RegistryService, connections *ConnectionManager,
	crud *CrudService, logger *zap.SugaredLogger) *TransferService {
	return &TransferService{
		registry:    registry,
		connections: connections,
		crud:        crud,
		logger:      logger,
	}
}

// Backup serializes descriptor metadata plus every record of every
// collection into one versioned document. The source is not mutated. A
// disconnected database is connected for the duration of the read pass and
// disconnected again afterwards.
func (s *TransferService) Backup(dbID string) (*engine.BackupDocument, error) {
	descriptor, err := s.registry.Lookup(dbID)
	if err != nil {
		return nil, err
	}

	wasConnected := true
	if _, err := s.connections.Connection(dbID); err != nil {
		wasConnected = false
		if _, err := s.connections.Connect(dbID); err != nil {
			return nil, errs.Wrap(errs.KindStorage, "could not open database for backup", err)
		}
	}
	if !wasConnected {
		defer func() {
			if err := s.connections.Disconnect(dbID); err != nil {
				s.logger.Warnf("Could not disconnect database %s after backup: %v", dbID, err)
			}
		}()
	}

	conn, err := s.connections.Connection(dbID)
	if err != nil {
		return nil, err
	}

	data := make(map[string][]engine.Record, len(descriptor.Collections))
	for name := range descriptor.Collections {
		records, err := conn.Store.DumpCollection(name)
		if err != nil {
			return nil, errs.Wrap(errs.KindStorage, "could not read collection "+name, err)
		}
		data[name] = records
	}

	document := &engine.BackupDocument{
		Version:   engine.BackupFormatVersion,
		Metadata:  descriptor,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	s.logger.Infof("Backed up database %s: %d collections", dbID, len(data))
	return document, nil
}

// WriteBackupFile writes a backup document to disk as indented JSON.
func (s *TransferService) WriteBackupFile(document *engine.BackupDocument, path string) error {
	encoded, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindStorage, "could not encode backup document", err)
	}
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return errs.Wrap(errs.KindStorage, "could not write backup file", err)
	}
	return nil
}

// Export serializes the selected collections. JSON emits the backup
// document shape; CSV flattens each collection into its own delimited
// section headed by "=== collectionName ===".
func (s *TransferService) Export(dbID string, options ExportOptions) ([]byte, error) {
	format := strings.ToLower(options.Format)
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatCSV {
		return nil, errs.Newf(errs.KindValidation, "unsupported export format %q", options.Format)
	}

	document, err := s.Backup(dbID)
	if err != nil {
		return nil, err
	}

	if len(options.Collections) > 0 {
		selected := make(map[string][]engine.Record, len(options.Collections))
		for _, name := range options.Collections {
			records, exists := document.Data[name]
			if !exists {
				return nil, errs.Newf(errs.KindNotFound, "collection %q not found in database %s", name, dbID)
			}
			selected[name] = records
		}
		document.Data = selected
	}

	if format == FormatJSON {
		encoded, err := json.MarshalIndent(document, "", "  ")
		if err != nil {
			return nil, errs.Wrap(errs.KindStorage, "could not encode export document", err)
		}
		return encoded, nil
	}
	return exportCSV(document)
}

// exportCSV renders one section per collection. Columns are the sorted
// union of the collection's field names so every row lines up.
func exportCSV(document *engine.BackupDocument) ([]byte, error) {
	collections := make([]string, 0, len(document.Data))
	for name := range document.Data {
		collections = append(collections, name)
	}
	sort.Strings(collections)

	var buf bytes.Buffer
	for _, name := range collections {
		fmt.Fprintf(&buf, "=== %s ===\n", name)

		records := document.Data[name]
		columns := collectColumns(records)
		writer := csv.NewWriter(&buf)
		if err := writer.Write(columns); err != nil {
			return nil, errs.Wrap(errs.KindStorage, "could not write csv header", err)
		}
		for _, rec := range records {
			row := make([]string, len(columns))
			for i, column := range columns {
				row[i] = csvValue(rec[column])
			}
			if err := writer.Write(row); err != nil {
				return nil, errs.Wrap(errs.KindStorage, "could not write csv row", err)
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return nil, errs.Wrap(errs.KindStorage, "could not flush csv section", err)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func collectColumns(records []engine.Record) []string {
	seen := make(map[string]bool)
	for _, rec := range records {
		for field := range rec {
			seen[field] = true
		}
	}
	columns := make([]string, 0, len(seen))
	for field := range seen {
		columns = append(columns, field)
	}
	sort.Strings(columns)
	return columns
}

func csvValue(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		if value == float64(int64(value)) {
			return fmt.Sprintf("%d", int64(value))
		}
		return fmt.Sprintf("%g", value)
	case []interface{}, map[string]interface{}:
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", value)
	}
}

// Import restores records from a backup document. Each target collection
// is optionally cleared first (one transaction), then records are written
// one by one: a record incompatible with the destination schema is logged
// as a warning and skipped, never failing the whole import. Returns the
// number of records actually written.
func (s *TransferService) Import(dbID string, document *engine.BackupDocument, options ImportOptions) (int, error) {
	if document == nil || len(document.Data) == 0 {
		return 0, errs.New(errs.KindValidation, "import document has no data")
	}
	if document.Version > engine.BackupFormatVersion {
		return 0, errs.Newf(errs.KindValidation, "unsupported backup format version %d", document.Version)
	}

	conn, err := s.connections.Connection(dbID)
	if err != nil {
		return 0, err
	}

	collections := make([]string, 0, len(document.Data))
	for name := range document.Data {
		if options.Collection != "" && name != options.Collection {
			continue
		}
		if _, exists := conn.Descriptor.Collections[name]; !exists {
			s.logger.Warnf("Skipping collection %q: not declared in database %s", name, dbID)
			continue
		}
		collections = append(collections, name)
	}
	sort.Strings(collections)

	imported := 0
	for _, name := range collections {
		if options.Overwrite {
			removed, err := conn.Store.Clear(name)
			if err != nil {
				return imported, errs.Wrap(errs.KindStorage, "could not clear collection "+name, err)
			}
			s.logger.Infof("Cleared %d records from %s/%s before import", removed, dbID, name)
		}

		for _, rec := range document.Data[name] {
			if _, err := s.crud.Create(dbID, name, rec.Clone()); err != nil {
				s.logger.Warnf("Skipping record in %s/%s: %v", dbID, name, err)
				continue
			}
			imported++
		}
	}

	s.logger.Infof("Imported %d records into database %s", imported, dbID)
	return imported, nil
}

// mergeSource names one collection kind the merge knows how to fold in.
type mergeSource struct {
	collection  string
	contentType string
}

// Merge clears the unified collection, then copies qualifying records from
// every included source collection of every active database into it,
// tagging each copy with its provenance. The unified analysis database is
// registered and connected on first use. Not atomic across sources; the
// report shows exactly which sources were copied.
func (s *TransferService) Merge(options MergeOptions) (*MergeReport, error) {
	var sources []mergeSource
	if options.IncludeClipboard {
		sources = append(sources, mergeSource{collection: "clipboard_history", contentType: "clipboard"})
	}
	if options.IncludeBookmarks {
		sources = append(sources, mergeSource{collection: "bookmarks", contentType: "bookmark"})
	}
	if options.IncludeHistory {
		sources = append(sources, mergeSource{collection: "history", contentType: "history"})
	}
	if len(sources) == 0 {
		return nil, errs.New(errs.KindValidation, "no merge sources selected")
	}

	if err := s.ensureUnifiedTarget(); err != nil {
		return nil, err
	}

	target, err := s.connections.Connection(UnifiedDatabaseID)
	if err != nil {
		return nil, err
	}
	if _, err := target.Store.Clear(UnifiedCollection); err != nil {
		return nil, errs.Wrap(errs.KindStorage, "could not clear unified collection", err)
	}

	databases := s.connections.ActiveIDs()
	sort.Strings(databases)

	report := &MergeReport{}
	for _, dbID := range databases {
		if dbID == UnifiedDatabaseID {
			continue
		}
		conn, err := s.connections.Connection(dbID)
		if err != nil {
			continue
		}

		for _, source := range sources {
			schema, exists := conn.Descriptor.Collections[source.collection]
			if !exists {
				continue
			}

			records, err := conn.Store.DumpCollection(source.collection)
			if err != nil {
				s.logger.Warnf("Could not read %s/%s for merge, skipping: %v", dbID, source.collection, err)
				continue
			}

			sourceReport := MergeSourceReport{DatabaseID: dbID, Collection: source.collection}
			for _, rec := range records {
				unified := unifyRecord(rec, dbID, source, schema.KeyPath)
				if _, err := s.crud.Create(UnifiedDatabaseID, UnifiedCollection, unified); err != nil {
					s.logger.Warnf("Could not copy record from %s/%s into unified collection: %v", dbID, source.collection, err)
					sourceReport.Failed++
					continue
				}
				sourceReport.Copied++
			}
			report.MergedCount += sourceReport.Copied
			report.Sources = append(report.Sources, sourceReport)
		}
	}

	s.logger.Infof("Merge copied %d records from %d sources into %s/%s",
		report.MergedCount, len(report.Sources), UnifiedDatabaseID, UnifiedCollection)
	return report, nil
}

// ensureUnifiedTarget registers and connects the analysis database on
// first use.
func (s *TransferService) ensureUnifiedTarget() error {
	if _, err := s.registry.Lookup(UnifiedDatabaseID); err != nil {
		if !errs.IsNotFound(err) {
			return err
		}
		if _, err := s.registry.Register(RegisterRequest{
			DatabaseID: UnifiedDatabaseID,
			Name:       UnifiedDatabaseName,
			Template:   unifiedTemplateName,
		}); err != nil {
			return err
		}
	}
	if _, err := s.connections.Connect(UnifiedDatabaseID); err != nil {
		return errs.Wrap(errs.KindConnection, "could not connect unified analysis database", err)
	}
	return nil
}

// unifyRecord copies the source record's values and adds the provenance
// tags: source database, a human-readable content summary, a normalized
// timestamp and content type. The source's key and bookkeeping fields are
// dropped so the unified collection assigns its own.
func unifyRecord(rec engine.Record, dbID string, source mergeSource, keyPath string) engine.Record {
	unified := rec.Clone()
	delete(unified, keyPath)
	delete(unified, engine.FieldCreated)
	delete(unified, engine.FieldModified)

	unified[engine.FieldSource] = dbID
	unified[engine.FieldContentType] = normalizeContentType(rec, source)
	unified[engine.FieldUnifiedContent] = summarizeContent(rec, source)
	unified[engine.FieldUnifiedTimestamp] = pickTimestamp(rec, "timestamp", "visit_time", "added_at", engine.FieldCreated)
	return unified
}

// normalizeContentType uses the record's own declared type for clipboard
// entries (lowercased) and the source kind otherwise.
func normalizeContentType(rec engine.Record, source mergeSource) string {
	if source.contentType == "clipboard" {
		if declared, ok := rec["type"].(string); ok && declared != "" {
			return strings.ToLower(declared)
		}
	}
	return source.contentType
}

// summarizeContent synthesizes a one-line human-readable summary from the
// fields each source kind carries.
func summarizeContent(rec engine.Record, source mergeSource) string {
	switch source.collection {
	case "clipboard_history":
		if content, ok := rec["content"].(string); ok {
			return content
		}
	case "bookmarks", "history":
		title, _ := rec["title"].(string)
		url, _ := rec["url"].(string)
		switch {
		case title != "" && url != "":
			return title + " (" + url + ")"
		case url != "":
			return url
		case title != "":
			return title
		}
	}
	return csvValue(rec["content"])
}

// pickTimestamp returns the first present candidate field, falling back to
// the current time so the unified timestamp index always has a value.
func pickTimestamp(rec engine.Record, candidates ...string) string {
	for _, field := range candidates {
		if value, ok := rec[field].(string); ok && value != "" {
			return value
		}
	}
	return time.Now().UTC().Format(time.RFC3339Nano)
}

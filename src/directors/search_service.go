package directors

import (
	"sort"
	"strings"

	"clipdash/src/engine"
	"clipdash/src/errs"

	"go.uber.org/zap"
)

// Relevance scoring weights: an exact field match beats a prefix match
// beats a substring match, and repeated occurrences of the term within a
// field earn a small bonus per repeat.
const (
	scoreExactMatch     = 100
	scorePrefixMatch    = 50
	scoreSubstringMatch = 25
	scoreRepeatBonus    = 5
)

// SearchOptions narrows a cross-database search. Empty Databases means
// every active database; empty Collections means every collection of each
// database; empty Fields scores every string-valued field.
type SearchOptions struct {
	Databases   []string
	Collections []string
	Fields      []string
	Limit       int
}

// SearchResult is one ranked hit with its provenance.
type SearchResult struct {
	DatabaseID string        `json:"database_id"`
	Collection string        `json:"collection"`
	Score      int           `json:"score"`
	Record     engine.Record `json:"record"`
}

// SearchService fans a query out across active databases and pools the
// hits into one relevance-ranked list.
type SearchService struct {
	connections *ConnectionManager
	crud        *CrudService
	logger      *zap.SugaredLogger
}

// NewSearchService creates a SearchService.
func NewSearchService(connections *ConnectionManager, crud *CrudService, logger *zap.SugaredLogger) *SearchService {
	return &SearchService{connections: connections, crud: crud, logger: logger}
}

// Search iterates the requested (or all active) databases and collections,
// filtering with case-insensitive substring containment over the requested
// fields. Per-store failures are logged and skipped so one broken store
// never aborts the whole search. Ties keep discovery order.
func (s *SearchService) Search(term string, options SearchOptions) ([]SearchResult, error) {
	if term == "" {
		return nil, errs.New(errs.KindValidation, "search term is empty")
	}
	needle := strings.ToLower(term)

	databases := options.Databases
	if len(databases) == 0 {
		databases = s.connections.ActiveIDs()
		sort.Strings(databases)
	}

	var pooled []SearchResult
	for _, dbID := range databases {
		conn, err := s.connections.Connection(dbID)
		if err != nil {
			s.logger.Warnf("Skipping database %s in search: %v", dbID, err)
			continue
		}

		for _, collection := range s.targetCollections(conn, options.Collections) {
			filter := func(rec engine.Record) bool {
				return recordMatches(rec, needle, options.Fields)
			}
			result, err := s.crud.Read(dbID, collection, engine.ReadOptions{Filter: filter})
			if err != nil {
				s.logger.Warnf("Search failed in %s/%s, skipping: %v", dbID, collection, err)
				continue
			}
			for _, rec := range result.Data {
				pooled = append(pooled, SearchResult{
					DatabaseID: dbID,
					Collection: collection,
					Score:      scoreRecord(rec, needle, options.Fields),
					Record:     rec,
				})
			}
		}
	}

	sort.SliceStable(pooled, func(i, j int) bool { return pooled[i].Score > pooled[j].Score })

	if options.Limit > 0 && len(pooled) > options.Limit {
		pooled = pooled[:options.Limit]
	}
	return pooled, nil
}

// targetCollections intersects the requested collections with the ones
// the database actually has.
func (s *SearchService) targetCollections(conn *engine.ActiveConnection, requested []string) []string {
	var names []string
	if len(requested) == 0 {
		for name := range conn.Descriptor.Collections {
			names = append(names, name)
		}
		sort.Strings(names)
		return names
	}
	for _, name := range requested {
		if _, exists := conn.Descriptor.Collections[name]; exists {
			names = append(names, name)
		}
	}
	return names
}

// searchableFields returns the field values to score: the requested
// fields, or every string-valued field when none were requested.
func searchableFields(rec engine.Record, fields []string) []string {
	var values []string
	if len(fields) > 0 {
		for _, name := range fields {
			if raw, ok := rec[name]; ok {
				if text, isString := raw.(string); isString {
					values = append(values, text)
				}
			}
		}
		return values
	}

	names := make([]string, 0, len(rec))
	for name := range rec {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if name == engine.FieldCreated || name == engine.FieldModified {
			continue
		}
		if text, isString := rec[name].(string); isString {
			values = append(values, text)
		}
	}
	return values
}

func recordMatches(rec engine.Record, needle string, fields []string) bool {
	for _, value := range searchableFields(rec, fields) {
		if strings.Contains(strings.ToLower(value), needle) {
			return true
		}
	}
	return false
}

// scoreRecord sums the per-field relevance: exact match 100, prefix 50,
// substring 25, plus 5 per repeated occurrence within the field.
func scoreRecord(rec engine.Record, needle string, fields []string) int {
	score := 0
	for _, value := range searchableFields(rec, fields) {
		haystack := strings.ToLower(value)
		occurrences := strings.Count(haystack, needle)
		if occurrences == 0 {
			continue
		}
		switch {
		case haystack == needle:
			score += scoreExactMatch
		case strings.HasPrefix(haystack, needle):
			score += scorePrefixMatch
		default:
			score += scoreSubstringMatch
		}
		score += scoreRepeatBonus * (occurrences - 1)
	}
	return score
}

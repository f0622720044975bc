package clipboard

import (
	"context"

	"clipdash/src/engine"

	"go.uber.org/zap"
)

// RecordWriter is the slice of the generic record API the seeder needs.
type RecordWriter interface {
	Create(dbID, collection string, data engine.Record) (engine.Record, error)
}

// Seeder copies clipboard history from the external service into a
// registered clipboard database.
type Seeder struct {
	client *Client
	writer RecordWriter
	logger *zap.SugaredLogger
}

// NewSeeder creates a Seeder.
func NewSeeder(client *Client, writer RecordWriter, logger *zap.SugaredLogger) *Seeder {
	return &Seeder{client: client, writer: writer, logger: logger}
}

// Seed fetches every entry from the service and inserts it into the
// clipboard_history collection of dbID. Entries that fail to insert are
// logged and skipped. Returns the number of records written.
func (s *Seeder) Seed(ctx context.Context, dbID string) (int, error) {
	entries, err := s.client.FetchAll(ctx)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, entry := range entries {
		rec := engine.Record{
			"content":   entry.Content,
			"type":      entry.Type,
			"timestamp": entry.Timestamp,
		}
		if _, err := s.writer.Create(dbID, "clipboard_history", rec); err != nil {
			s.logger.Warnf("Skipping clipboard entry: %v", err)
			continue
		}
		written++
	}

	s.logger.Infof("Seeded %d clipboard entries into database %s", written, dbID)
	return written, nil
}

package history

import (
	"fmt"

	"Replaya/internal/config"
	"Replaya/internal/replay"
)

const maxEntries = 100

// Query narrows a history listing. Search matches file name or interface,
// Status filters on the terminal state, Limit/Offset paginate.
type Query struct {
	Search string
	Status string
	Limit  int
	Offset int
}

// Page is one slice of the history plus the total match count.
type Page struct {
	Entries []replay.HistoryRecord `json:"entries"`
	Total   int                    `json:"total"`
}

// Store persists finished replay sessions. It doubles as the supervisor's
// HistoryRecorder.
type Store interface {
	Record(rec replay.HistoryRecord) error
	List(q Query) (Page, error)
	Clear() error
}

// New builds the store named by the configuration.
func New(cfg config.HistoryConfig) (Store, error) {
	switch cfg.Type {
	case "", "file":
		return NewFileStore(cfg.Path)
	case "clickhouse":
		return NewClickHouseStore(cfg.ClickHouse)
	default:
		return nil, fmt.Errorf("unknown history store type %q", cfg.Type)
	}
}

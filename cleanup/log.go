package cleanup

import (
	"context"

	"gorm.io/gorm"

	"github.com/cppla/orderimages/options"
)

const (
	// LogOption is the options row holding the cleanup history.
	LogOption = "aiep_cleanup_log"
	// MaxLogEntries is how many runs the history keeps; older ones are dropped first.
	MaxLogEntries = 10
	// TimeLayout formats log timestamps.
	TimeLayout = "2006-01-02 15:04:05"
)

// DeletedImage describes one removed object.
type DeletedImage struct {
	ID   uint   `json:"id"`
	URL  string `json:"url"`
	Path string `json:"path"`
	Time string `json:"time"`
}

// LogEntry summarises a run that deleted at least one image.
type LogEntry struct {
	Timestamp     string         `json:"timestamp"`
	ImagesDeleted int            `json:"images_deleted"`
	Details       []DeletedImage `json:"details"`
}

// LogStore keeps the bounded cleanup history.
type LogStore struct {
	db *gorm.DB
}

// NewLogStore returns a history store over db.
func NewLogStore(db *gorm.DB) *LogStore {
	return &LogStore{db: db}
}

// Entries returns the history, oldest first.
func (s *LogStore) Entries(ctx context.Context) ([]LogEntry, error) {
	var entries []LogEntry
	if _, err := options.Get(ctx, s.db, LogOption, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []LogEntry{}
	}
	return entries, nil
}

// Append adds e and drops the oldest entries beyond MaxLogEntries.
func (s *LogStore) Append(ctx context.Context, e LogEntry) error {
	entries, err := s.Entries(ctx)
	if err != nil {
		return err
	}
	entries = append(entries, e)
	if len(entries) > MaxLogEntries {
		entries = entries[len(entries)-MaxLogEntries:]
	}
	return options.Put(ctx, s.db, LogOption, entries)
}

package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"creditpool/core/events"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrUnknownDriver is returned by Open for drivers other than sqlite and
// postgres.
var ErrUnknownDriver = errors.New("journal: unknown driver")

// Entry is one journaled event.
type Entry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"size:64;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// Decode returns the entry's attribute map.
func (e Entry) Decode() (map[string]string, error) {
	out := map[string]string{}
	if e.Attributes == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(e.Attributes), &out); err != nil {
		return nil, fmt.Errorf("journal: decode entry %s: %w", e.ID, err)
	}
	return out, nil
}

// Journal is an append-only, sequence-numbered event log kept in a SQL
// database. It implements events.Emitter, so it can sit in an emitter
// fanout next to live subscribers.
type Journal struct {
	mu     sync.Mutex
	db     *gorm.DB
	next   uint64
	nowFn  func() time.Time
	logger *slog.Logger
}

// Open connects to driver at dsn and migrates the schema.
func Open(driver, dsn string) (*Journal, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "":
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", driver, err)
	}
	return New(db)
}

// New wraps an open gorm handle and migrates the schema.
func New(db *gorm.DB) (*Journal, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	var last struct{ Max uint64 }
	if err := db.Model(&Entry{}).Select("COALESCE(MAX(sequence), 0) AS max").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("journal: load sequence: %w", err)
	}
	return &Journal{
		db:     db,
		next:   last.Max + 1,
		nowFn:  time.Now,
		logger: slog.Default().With("component", "journal"),
	}, nil
}

// SetNowFunc overrides the clock. Primarily used in tests.
func (j *Journal) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	j.mu.Lock()
	j.nowFn = now
	j.mu.Unlock()
}

// Append stores evt as the next entry.
func (j *Journal) Append(evt events.Event) (Entry, error) {
	rendered := events.Render(evt)
	attrs, err := json.Marshal(rendered.Attributes)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: encode %s: %w", rendered.Type, err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	entry := Entry{
		ID:         uuid.New(),
		Sequence:   j.next,
		Type:       rendered.Type,
		Attributes: string(attrs),
		CreatedAt:  j.nowFn().UTC(),
	}
	if err := j.db.Create(&entry).Error; err != nil {
		return Entry{}, fmt.Errorf("journal: append %s: %w", rendered.Type, err)
	}
	j.next++
	return entry, nil
}

// Emit implements events.Emitter. Failures are logged and dropped; the
// ledger state is the source of truth and the journal is an audit trail.
func (j *Journal) Emit(evt events.Event) {
	if _, err := j.Append(evt); err != nil {
		j.logger.Error("journal append failed", "type", evt.EventType(), "error", err)
	}
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Entry
	if err := j.db.Order("sequence DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	return out, nil
}

// Since returns up to limit entries with a sequence above after, oldest
// first. Stream subscribers use it to catch up after a reconnect.
func (j *Journal) Since(after uint64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Entry
	if err := j.db.Where("sequence > ?", after).Order("sequence ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("journal: since %d: %w", after, err)
	}
	return out, nil
}

// ByType returns up to limit entries of one event type, newest first.
func (j *Journal) ByType(eventType string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Entry
	if err := j.db.Where("type = ?", eventType).Order("sequence DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("journal: by type %s: %w", eventType, err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

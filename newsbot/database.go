package newsbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	dbTypeSQLite   = "sqlite"
	dbTypePostgres = "postgres"

	// repostSeparator joins repost message references in
	// AnnouncementRecord.Reposts
	repostSeparator = ","
)

var (
	sqliteMaxOpenConns    = 1
	sqliteMaxIdleConns    = 1
	sqliteMaxConnLifetime = 5 * time.Minute
	sqliteExecPragma      = []string{
		"pragma journal_mode=WAL;",
		"pragma synchronous = normal;",
		"pragma temp_store = memory;",
		"pragma foreign_keys = ON;",
	}
	dbOperationTimeout = 30 * time.Second
)

// ModelUnixTime is an embeddable model with Unix timestamps for
// creation, update, and deletion.
type ModelUnixTime struct {
	CreatedAt int64          `gorm:"autoCreateTime:milli" json:"created_at,omitempty"`
	UpdatedAt int64          `gorm:"autoUpdateTime:milli" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

type ModelUintID struct {
	ID uint `gorm:"primaryKey" json:"id"`
}

// AnnouncementRecord is the audit trail for a published announcement.
// It's created on publish, updated when the announcement is edited, and
// soft-deleted when the announcement is deleted.
//
//nolint:lll // struct tags can't be split
type AnnouncementRecord struct {
	ModelUintID
	ModelUnixTime
	SessionID      string       `json:"session_id" gorm:"index"`
	State          SessionState `json:"state"`
	GuildID        string       `json:"guild_id"`
	ChannelID      string       `json:"channel_id" gorm:"not null"`
	MessageID      string       `json:"message_id" gorm:"not null;uniqueIndex"`
	VideoMessageID string       `json:"video_message_id,omitempty"`
	PingMessageID  string       `json:"ping_message_id,omitempty"`
	Reposts        string       `json:"reposts,omitempty"`
	Title          string       `json:"title"`
	AuthorID       string       `json:"author_id"`
	OperatorID     string       `json:"operator_id" gorm:"index"`
	RoleID         string       `json:"role_id,omitempty"`
	Anonymous      bool         `json:"anonymous"`
	Notified       bool         `json:"notified"`
}

func (r AnnouncementRecord) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("id", uint64(r.ID)),
		slog.String("channel_id", r.ChannelID),
		slog.String("message_id", r.MessageID),
		slog.String("state", string(r.State)),
	)
}

// RepostIDs returns the "channelID-messageID" references of the reposted
// copies of the announcement
func (r AnnouncementRecord) RepostIDs() []string {
	if r.Reposts == "" {
		return []string{}
	}
	return strings.Split(r.Reposts, repostSeparator)
}

// database wraps a gorm connection. When using sqlite, writes are
// serialized with a mutex.
type database struct {
	db                     *gorm.DB
	mu                     sync.Mutex
	logger                 *slog.Logger
	enableConcurrentWrites bool
}

// DBI is the write interface to the database
type DBI interface {
	DB() *gorm.DB
	Create(ctx context.Context, value any, omit ...string) (rowsAffected int64, err error)
	Updates(ctx context.Context, model any, values any) (rowsAffected int64, err error)
	UpdatesWhere(
		ctx context.Context,
		model any,
		values map[string]any,
		query any,
		conds ...any,
	) (rowsAffected int64, err error)
	Delete(ctx context.Context, value any, conds ...any) (rowsAffected int64, err error)
	Save(ctx context.Context, value any, omit ...string) (rowsAffected int64, err error)
}

// NewDatabase returns a DBI for the given connection. If
// enableConcurrentWrites is false, writes are serialized.
func NewDatabase(
	db *gorm.DB,
	log *slog.Logger,
	enableConcurrentWrites bool,
) DBI {
	if log == nil {
		log = slog.Default()
	}
	return &database{
		db:                     db,
		logger:                 log.With(loggerNameKey, "writedb"),
		enableConcurrentWrites: enableConcurrentWrites,
	}
}

func (d *database) DB() *gorm.DB {
	return d.db
}

func (d *database) lock() func() {
	if d.enableConcurrentWrites {
		return func() {}
	}
	d.mu.Lock()
	return d.mu.Unlock
}

func withDBTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, dbOperationTimeout)
}

func (d *database) Create(ctx context.Context, value any, omit ...string) (
	rowsAffected int64,
	err error,
) {
	defer d.lock()()
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	db := d.db.WithContext(ctx)
	if len(omit) > 0 {
		db = db.Omit(omit...)
	}
	rv := db.Create(value)
	return rv.RowsAffected, rv.Error
}

func (d *database) Updates(ctx context.Context, model, values any) (
	rowsAffected int64,
	err error,
) {
	defer d.lock()()
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	rv := d.db.WithContext(ctx).Model(model).Updates(values)
	return rv.RowsAffected, rv.Error
}

func (d *database) UpdatesWhere(
	ctx context.Context,
	model any,
	values map[string]any,
	query any,
	conds ...any,
) (rowsAffected int64, err error) {
	defer d.lock()()
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	rv := d.db.WithContext(ctx).Model(model).Where(query, conds...).Updates(values)
	return rv.RowsAffected, rv.Error
}

func (d *database) Save(ctx context.Context, value any, omit ...string) (
	rowsAffected int64,
	err error,
) {
	defer d.lock()()
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	db := d.db.WithContext(ctx)
	if len(omit) > 0 {
		db = db.Omit(omit...)
	}
	rv := db.Save(value)
	return rv.RowsAffected, rv.Error
}

func (d *database) Delete(ctx context.Context, value any, conds ...any) (
	rowsAffected int64,
	err error,
) {
	defer d.lock()()
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	rv := d.db.WithContext(ctx).Delete(value, conds...)
	return rv.RowsAffected, rv.Error
}

// migrateModels are the models created/updated by AutoMigrate
func migrateModels() []any {
	return []any{
		&AnnouncementRecord{},
		&InteractionLog{},
	}
}

// CreateDB initializes and returns a GORM database connection based on the specified database type.
// It also performs auto-migration for the bot's models.
func CreateDB(ctx context.Context, databaseType string, database string) (*gorm.DB, error) {
	handler := tint.NewHandler(
		os.Stdout,
		&tint.Options{
			Level:     slog.LevelWarn,
			AddSource: true,
		},
	)

	gormLogger := newGORMLogger(handler, 500*time.Millisecond)
	dbLogger := slog.New(handler)

	dbLogger.InfoContext(
		ctx,
		"Initializing database",
		"database_type", databaseType,
		"database", database,
	)
	db, err := getDB(databaseType, database, gormLogger)
	if err != nil {
		return db, err
	}

	if err = migrate(ctx, db); err != nil {
		return db, err
	}
	return db, nil
}

func migrate(ctx context.Context, db *gorm.DB) error {
	txn := db.WithContext(ctx).Begin()
	if err := txn.Migrator().AutoMigrate(migrateModels()...); err != nil {
		txn.Rollback()
		return fmt.Errorf("error migrating database: %w", err)
	}
	if err := txn.Commit().Error; err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

// getDB initializes and returns a GORM database connection based on the
// specified database type.
func getDB(
	databaseType string,
	database string,
	gormLogger *gormStructuredLogger,
) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
	switch databaseType {
	case dbTypeSQLite:
		parentDir := filepath.Dir(database)
		if parentDir != "" {
			if err := os.MkdirAll(parentDir, 0755); err != nil {
				if !errors.Is(err, os.ErrExist) {
					return nil, err
				}
			}
		}
		return gorm.Open(sqlite.Open(database), cfg)
	case dbTypePostgres:
		return gorm.Open(postgres.Open(database), cfg)
	default:
		return nil, fmt.Errorf(
			"unsupported database type: %s (must be %q or %q)",
			databaseType, dbTypeSQLite, dbTypePostgres,
		)
	}
}

// recordPublished saves an audit record for a newly published announcement
func (b *Bot) recordPublished(
	ctx context.Context,
	s *Session,
	result *publishResult,
) {
	if b.writeDB == nil || result == nil || result.Message == nil {
		return
	}
	ctx, logger := b.getLogger(ctx)
	rec := &AnnouncementRecord{
		SessionID:  s.ID,
		State:      SessionPublished,
		GuildID:    s.GuildID,
		ChannelID:  result.Message.ChannelID,
		MessageID:  result.Message.ID,
		Title:      s.draft.Title,
		AuthorID:   s.draft.AuthorID,
		OperatorID: s.OwnerID,
		Anonymous:  s.draft.Anonymous,
		Notified:   result.Crossposted,
		Reposts:    strings.Join(result.Reposts, repostSeparator),
	}
	if result.VideoMessage != nil {
		rec.VideoMessageID = result.VideoMessage.ID
	}
	if result.PingMessage != nil {
		rec.PingMessageID = result.PingMessage.ID
	}
	if role, ok := s.draft.PingRole.Get(); ok {
		rec.RoleID = role.ID
	}
	if _, err := b.writeDB.Create(ctx, rec); err != nil {
		logger.ErrorContext(ctx, "error saving announcement record", tint.Err(err))
	}
}

// recordEdited updates the audit record for an edited announcement, if
// one exists
func (b *Bot) recordEdited(ctx context.Context, s *Session, target *postedAnnouncement) {
	if b.writeDB == nil || target == nil || target.Message == nil {
		return
	}
	ctx, logger := b.getLogger(ctx)
	values := map[string]any{
		"title":       s.draft.Title,
		"state":       SessionEdited,
		"anonymous":   s.draft.Anonymous,
		"operator_id": s.OwnerID,
	}
	if s.draft.VideoURL == "" {
		values["video_message_id"] = ""
	}
	if _, err := b.writeDB.UpdatesWhere(
		ctx,
		&AnnouncementRecord{},
		values,
		"message_id = ?",
		target.Message.ID,
	); err != nil {
		logger.ErrorContext(ctx, "error updating announcement record", tint.Err(err))
	}
}

// recordDeleted soft-deletes the audit record for a deleted announcement
func (b *Bot) recordDeleted(ctx context.Context, messageID string) {
	if b.writeDB == nil {
		return
	}
	ctx, logger := b.getLogger(ctx)
	if _, err := b.writeDB.Delete(
		ctx,
		&AnnouncementRecord{},
		"message_id = ?",
		messageID,
	); err != nil {
		logger.ErrorContext(ctx, "error deleting announcement record", tint.Err(err))
	}
}

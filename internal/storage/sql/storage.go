package sqlstorage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LinkovichChomofski/calendaragent/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

var (
	ErrConnectionFailed = errors.New("failed to connect")
	ErrUnknownDriver    = errors.New("unknown database driver")
)

const dbErrUniqueViolation = "23505"

//go:embed schema.sql
var schema string

type Config struct {
	Driver   string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string
	Migrate  bool
}

type Storage struct {
	*queries
	config Config
	db     *sqlx.DB
}

func New(config Config) *Storage {
	if config.Driver == "" {
		config.Driver = "postgres"
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}
	return &Storage{config: config}
}

func (s *Storage) dsn() string {
	return fmt.Sprintf(
		"sslmode=%s host=%s port=%d dbname=%s user=%s password=%s",
		s.config.SSLMode, s.config.Host, s.config.Port, s.config.Database, s.config.Username, s.config.Password)
}

func (s *Storage) Connect(ctx context.Context) error {
	switch s.config.Driver {
	case "postgres", "pgx":
	default:
		return fmt.Errorf("%q: %w", s.config.Driver, ErrUnknownDriver)
	}
	db, err := sqlx.ConnectContext(ctx, s.config.Driver, s.dsn())
	if err != nil {
		log.Errorf("failed to connect: %v", err)
		return ErrConnectionFailed
	}
	s.db = db
	s.queries = &queries{ext: db}
	if s.config.Migrate {
		return s.Migrate(ctx)
	}
	return nil
}

func (s *Storage) Close(_ context.Context) error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

// Migrate creates missing tables and indexes.
func (s *Storage) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

func (s *Storage) WithSession(ctx context.Context, fn func(ctx context.Context, repo storage.Repository) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(ctx, &queries{ext: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Errorf("failed to rollback: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// DeleteCalendar runs in its own transaction so the calendar row and its
// events change together.
func (s *Storage) DeleteCalendar(ctx context.Context, id string, at time.Time) error {
	return s.WithSession(ctx, func(ctx context.Context, repo storage.Repository) error {
		return repo.DeleteCalendar(ctx, id, at)
	})
}

// Lock takes a session level advisory lock on a dedicated connection.
func (s *Storage) Lock(ctx context.Context, key string) (func(), error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock(hashtext($1))", key); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to lock %q: %w", key, err)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock(hashtext($1))", key); err != nil {
			log.Errorf("failed to unlock %q: %v", key, err)
		}
		conn.Close()
	}, nil
}

const eventColumns = "id, external_id, title, description, location, start_time, end_time, calendar_id, " +
	"source, is_recurring, recurrence_pattern, last_synced, is_deleted"

type queries struct {
	ext sqlx.ExtContext
}

func (q *queries) FindByExternalID(ctx context.Context, externalID string) (storage.Event, error) {
	var e storage.Event
	err := sqlx.GetContext(ctx, q.ext, &e, "SELECT "+eventColumns+" FROM events WHERE external_id=$1", externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("external id %q: %w", externalID, storage.ErrNotFoundEvent)
	}
	return e, err
}

func (q *queries) GetEvent(ctx context.Context, id string) (storage.Event, error) {
	var e storage.Event
	err := sqlx.GetContext(ctx, q.ext, &e, "SELECT "+eventColumns+" FROM events WHERE id=$1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("id %q: %w", id, storage.ErrNotFoundEvent)
	}
	return e, err
}

func (q *queries) ListByCalendar(ctx context.Context, calendarID string, includeDeleted bool) ([]storage.Event, error) {
	events := make([]storage.Event, 0)
	err := sqlx.SelectContext(ctx, q.ext, &events,
		"SELECT "+eventColumns+" FROM events WHERE calendar_id=$1 AND ($2 OR NOT is_deleted) ORDER BY start_time, id",
		calendarID, includeDeleted)
	return events, err
}

// Select live events in range [from:to).
func (q *queries) ListEvents(ctx context.Context, from, to time.Time) ([]storage.Event, error) {
	events := make([]storage.Event, 0)
	err := sqlx.SelectContext(ctx, q.ext, &events,
		"SELECT "+eventColumns+" FROM events WHERE NOT is_deleted AND start_time>=$1 AND start_time<$2 "+
			"ORDER BY start_time, id",
		from, to)
	return events, err
}

func (q *queries) InsertEvent(ctx context.Context, e *storage.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := sqlx.NamedExecContext(ctx, q.ext,
		"INSERT INTO events("+eventColumns+") VALUES(:id, :external_id, :title, :description, :location, "+
			":start_time, :end_time, :calendar_id, :source, :is_recurring, :recurrence_pattern, :last_synced, :is_deleted)",
		e)
	return mapUniqueViolation(err, e)
}

func (q *queries) UpdateEvent(ctx context.Context, e storage.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	res, err := sqlx.NamedExecContext(ctx, q.ext,
		"UPDATE events SET external_id=:external_id, title=:title, description=:description, location=:location, "+
			"start_time=:start_time, end_time=:end_time, calendar_id=:calendar_id, source=:source, "+
			"is_recurring=:is_recurring, recurrence_pattern=:recurrence_pattern, last_synced=:last_synced, "+
			"is_deleted=:is_deleted WHERE id=:id",
		e)
	if err != nil {
		return mapUniqueViolation(err, &e)
	}
	return expectRow(res, fmt.Errorf("failed to update event with id %q: %w", e.ID, storage.ErrNotFoundEvent))
}

func (q *queries) SoftDeleteEvent(ctx context.Context, id string, at time.Time) error {
	res, err := q.ext.ExecContext(ctx, "UPDATE events SET is_deleted=TRUE, last_synced=$2 WHERE id=$1", id, at)
	if err != nil {
		return err
	}
	return expectRow(res, fmt.Errorf("failed to remove event with id %q: %w", id, storage.ErrNotFoundEvent))
}

func (q *queries) UpsertCalendar(ctx context.Context, c storage.Calendar) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	_, err := sqlx.NamedExecContext(ctx, q.ext,
		"INSERT INTO calendars(id, summary, description, time_zone, background_color, foreground_color, "+
			"access_role, is_primary, updated_at) VALUES(:id, :summary, :description, :time_zone, :background_color, "+
			":foreground_color, :access_role, :is_primary, :updated_at) "+
			"ON CONFLICT (id) DO UPDATE SET summary=EXCLUDED.summary, description=EXCLUDED.description, "+
			"time_zone=EXCLUDED.time_zone, background_color=EXCLUDED.background_color, "+
			"foreground_color=EXCLUDED.foreground_color, access_role=EXCLUDED.access_role, "+
			"is_primary=EXCLUDED.is_primary, updated_at=EXCLUDED.updated_at",
		c)
	return err
}

func (q *queries) GetCalendar(ctx context.Context, id string) (storage.Calendar, error) {
	var c storage.Calendar
	err := sqlx.GetContext(ctx, q.ext, &c, "SELECT * FROM calendars WHERE id=$1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("calendar %q: %w", id, storage.ErrNotFoundCalendar)
	}
	return c, err
}

func (q *queries) ListCalendars(ctx context.Context) ([]storage.Calendar, error) {
	list := make([]storage.Calendar, 0)
	err := sqlx.SelectContext(ctx, q.ext, &list, "SELECT * FROM calendars ORDER BY is_primary DESC, id")
	return list, err
}

func (q *queries) DeleteCalendar(ctx context.Context, id string, at time.Time) error {
	res, err := q.ext.ExecContext(ctx, "DELETE FROM calendars WHERE id=$1", id)
	if err != nil {
		return err
	}
	if err := expectRow(res, fmt.Errorf("calendar %q: %w", id, storage.ErrNotFoundCalendar)); err != nil {
		return err
	}
	if _, err := q.ext.ExecContext(ctx,
		"UPDATE events SET is_deleted=TRUE, last_synced=$2 WHERE calendar_id=$1 AND NOT is_deleted", id, at); err != nil {
		return err
	}
	_, err = q.ext.ExecContext(ctx, "DELETE FROM sync_states WHERE calendar_id=$1", id)
	return err
}

func (q *queries) UpsertParticipant(ctx context.Context, p *storage.Participant) error {
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if p.Email == "" {
		return storage.ErrEmptyParticipantMail
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return sqlx.GetContext(ctx, q.ext, p,
		"INSERT INTO participants(id, name, email) VALUES($1, $2, $3) "+
			"ON CONFLICT (email) DO UPDATE SET name=CASE WHEN EXCLUDED.name='' THEN participants.name "+
			"ELSE EXCLUDED.name END RETURNING id, name, email",
		p.ID, p.Name, p.Email)
}

func (q *queries) SetEventParticipants(ctx context.Context, eventID string, participantIDs []string) error {
	var exists bool
	if err := sqlx.GetContext(ctx, q.ext, &exists, "SELECT EXISTS(SELECT 1 FROM events WHERE id=$1)", eventID); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("event %q: %w", eventID, storage.ErrNotFoundEvent)
	}
	if _, err := q.ext.ExecContext(ctx, "DELETE FROM event_participants WHERE event_id=$1", eventID); err != nil {
		return err
	}
	for _, id := range participantIDs {
		if _, err := q.ext.ExecContext(ctx,
			"INSERT INTO event_participants(event_id, participant_id) VALUES($1, $2) ON CONFLICT DO NOTHING",
			eventID, id); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) ListParticipants(ctx context.Context, eventID string) ([]storage.Participant, error) {
	list := make([]storage.Participant, 0)
	err := sqlx.SelectContext(ctx, q.ext, &list,
		"SELECT p.id, p.name, p.email FROM participants p "+
			"JOIN event_participants ep ON ep.participant_id=p.id WHERE ep.event_id=$1 ORDER BY p.email",
		eventID)
	return list, err
}

func (q *queries) GetSyncState(ctx context.Context, calendarID string) (storage.SyncState, error) {
	var ss storage.SyncState
	err := sqlx.GetContext(ctx, q.ext, &ss,
		"SELECT calendar_id, last_sync_token, last_synced, full_sync_needed FROM sync_states WHERE calendar_id=$1",
		calendarID)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.NewSyncState(calendarID), fmt.Errorf("calendar %q: %w", calendarID, storage.ErrNotFoundSyncState)
	}
	return ss, err
}

func (q *queries) SaveSyncState(ctx context.Context, ss storage.SyncState) error {
	_, err := sqlx.NamedExecContext(ctx, q.ext,
		"INSERT INTO sync_states(calendar_id, last_sync_token, last_synced, full_sync_needed) "+
			"VALUES(:calendar_id, :last_sync_token, :last_synced, :full_sync_needed) "+
			"ON CONFLICT (calendar_id) DO UPDATE SET last_sync_token=EXCLUDED.last_sync_token, "+
			"last_synced=EXCLUDED.last_synced, full_sync_needed=EXCLUDED.full_sync_needed",
		ss)
	return err
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// mapUniqueViolation translates unique violations of either driver.
func mapUniqueViolation(err error, e *storage.Event) error {
	if err == nil {
		return nil
	}
	var constraint string
	var pqErr *pq.Error
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pqErr) && pqErr.Code == dbErrUniqueViolation:
		constraint = pqErr.Constraint
	case errors.As(err, &pgErr) && pgErr.Code == dbErrUniqueViolation:
		constraint = pgErr.ConstraintName
	default:
		return err
	}
	if strings.Contains(constraint, "external_id") {
		return fmt.Errorf("duplicate external ID %q: %w", storage.StringValue(e.ExternalID), storage.ErrDuplicateExternalID)
	}
	return fmt.Errorf("duplicate ID %q: %w", e.ID, storage.ErrDuplicateEventID)
}

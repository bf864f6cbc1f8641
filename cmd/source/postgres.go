package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/airframesio/report-archiver/cmd/report"
	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
)

// ErrInvalidIdentifier is returned when a configured column name is not a
// plain PostgreSQL identifier.
var ErrInvalidIdentifier = errors.New("invalid PostgreSQL identifier")

// validPostgreSQLIdentifier checks if a string is a valid PostgreSQL identifier
// to prevent SQL injection attacks
var validPostgreSQLIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// IsValidIdentifier validates that a name is safe to use as a column name
func IsValidIdentifier(name string) bool {
	return name != "" && len(name) <= 63 && validPostgreSQLIdentifier.MatchString(name)
}

// Config holds connection settings for the operational database
type Config struct {
	Host             string
	Port             int
	User             string
	Password         string
	Name             string
	SSLMode          string
	StatementTimeout int // seconds, 0 = no timeout
	MaxRetries       int
	RetryDelay       int // seconds
	TopicOrderColumn string // numeric column, fractional values are rounded
}

// DSN builds the lib/pq connection string
func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		sslMode,
	)

	if c.StatementTimeout > 0 {
		connStr += fmt.Sprintf(" statement_timeout=%d", c.StatementTimeout*1000)
	}
	return connStr
}

// Postgres implements Source on database/sql with the lib/pq driver
type Postgres struct {
	db      *sql.DB
	orderBy string
	logger  *slog.Logger
}

// Open connects and pings the database, retrying with a constant delay
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Postgres, error) {
	var db *sql.DB
	attempt := 0

	err := backoff.Retry(
		func() error {
			attempt++
			conn, err := sql.Open("postgres", cfg.DSN())
			if err != nil {
				return backoff.Permanent(err)
			}
			if err := conn.PingContext(ctx); err != nil {
				conn.Close()
				logger.Warn(fmt.Sprintf("⚠️  Database connection attempt %d failed: %v", attempt, err))
				return err
			}
			db = conn
			return nil
		},
		backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Duration(cfg.RetryDelay)*time.Second), uint64(max(cfg.MaxRetries, 0))),
			ctx,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return NewPostgres(db, cfg.TopicOrderColumn, logger)
}

// NewPostgres wraps an open database handle
func NewPostgres(db *sql.DB, topicOrderColumn string, logger *slog.Logger) (*Postgres, error) {
	if topicOrderColumn == "" {
		topicOrderColumn = "id"
	}
	if !IsValidIdentifier(topicOrderColumn) {
		return nil, fmt.Errorf("%w: '%s'", ErrInvalidIdentifier, topicOrderColumn)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, orderBy: pq.QuoteIdentifier(topicOrderColumn), logger: logger}, nil
}

// Close closes the database handle
func (p *Postgres) Close() error {
	return p.db.Close()
}

// builder returns a squirrel statement builder using $n placeholders
func builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// ListCategories returns every feedback topic in display order
func (p *Postgres) ListCategories(ctx context.Context) ([]report.CategoryDefinition, error) {
	query, args, err := builder().
		Select("id", "name", fmt.Sprintf("CAST(COALESCE(%s, 0) AS BIGINT)", p.orderBy)).
		From("feedback_topics").
		OrderBy(p.orderBy, "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build topics query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback topics: %w", err)
	}
	defer rows.Close()

	var categories []report.CategoryDefinition
	for rows.Next() {
		var c report.CategoryDefinition
		var name sql.NullString
		if err := rows.Scan(&c.ID, &name, &c.SortKey); err != nil {
			return nil, fmt.Errorf("failed to scan feedback topic: %w", err)
		}
		c.Name = name.String
		if c.Name == "" {
			c.Name = fmt.Sprintf("หัวข้อ %d", c.ID)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read feedback topics: %w", err)
	}

	p.logger.Debug(fmt.Sprintf("  📋 Loaded %d feedback topics", len(categories)))
	return report.SortCategories(categories), nil
}

// ListFeedbacks returns feedback rows created within rng with their location
func (p *Postgres) ListFeedbacks(ctx context.Context, rng report.DateRange) ([]report.Feedback, error) {
	query, args, err := builder().
		Select(
			"f.id",
			"f.created_at",
			"f.rating",
			"f.answers",
			"COALESCE(f.comment, '')",
			"l.locations_id",
			"COALESCE(l.locations_name, '')",
			"COALESCE(l.locations_building, '')",
			"COALESCE(l.locations_floor, '')",
		).
		From("feedbacks f").
		LeftJoin("locations l ON l.locations_id = f.locations_id").
		Where(sq.GtOrEq{"f.created_at": rng.Start}).
		Where(sq.LtOrEq{"f.created_at": rng.End}).
		OrderBy("f.created_at", "f.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build feedbacks query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedbacks: %w", err)
	}
	defer rows.Close()

	var feedbacks []report.Feedback
	for rows.Next() {
		var (
			f       report.Feedback
			rating  sql.NullFloat64
			answers []byte
			locID   sql.NullInt64
		)
		if err := rows.Scan(&f.ID, &f.CreatedAt, &rating, &answers, &f.Comment,
			&locID, &f.Location.Name, &f.Location.Building, &f.Location.Floor); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		if rating.Valid {
			v := rating.Float64
			f.Rating = &v
		}
		f.Location.ID = locID.Int64
		f.Answers, err = DecodeAnswers(answers)
		if err != nil {
			return nil, fmt.Errorf("failed to decode answers of feedback %d: %w", f.ID, err)
		}
		feedbacks = append(feedbacks, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read feedbacks: %w", err)
	}

	p.logger.Debug(fmt.Sprintf("  📋 Loaded %d feedbacks", len(feedbacks)))
	return feedbacks, nil
}

// ListCheckSessions returns check sessions created within rng joined with
// the employee, location, time slot and inspector
func (p *Postgres) ListCheckSessions(ctx context.Context, rng report.DateRange) ([]report.CheckSession, error) {
	query, args, err := builder().
		Select(
			"cs.check_sessions_id",
			"cs.check_sessions_date",
			"COALESCE(cs.check_sessions_status, '')",
			"COALESCE(cs.supervisor_comment, '')",
			"cs.created_at",
			"cs.updated_at",
			"COALESCE(e.employees_firstname, '')",
			"COALESCE(e.employees_lastname, '')",
			"l.locations_id",
			"COALESCE(l.locations_name, '')",
			"COALESCE(l.locations_building, '')",
			"COALESCE(l.locations_floor, '')",
			"COALESCE(ts.time_slots_start::text, '')",
			"i.employees_id",
			"COALESCE(i.employees_firstname, '')",
			"COALESCE(i.employees_lastname, '')",
			"COALESCE(i.role, '')",
		).
		From("check_sessions cs").
		LeftJoin("employees e ON e.employees_id = cs.employees_id").
		LeftJoin("locations l ON l.locations_id = cs.locations_id").
		LeftJoin("time_slots ts ON ts.time_slots_id = cs.time_slots_id").
		LeftJoin("employees i ON i.employees_id = cs.checked_by").
		Where(sq.GtOrEq{"cs.created_at": rng.Start}).
		Where(sq.LtOrEq{"cs.created_at": rng.End}).
		OrderBy("cs.created_at", "cs.check_sessions_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build check sessions query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query check sessions: %w", err)
	}
	defer rows.Close()

	var sessions []report.CheckSession
	for rows.Next() {
		var (
			s           report.CheckSession
			sessionDate sql.NullTime
			updatedAt   sql.NullTime
			locID       sql.NullInt64
			inspectorID sql.NullInt64
			inspector   report.Person
		)
		if err := rows.Scan(
			&s.ID, &sessionDate, &s.Status, &s.SupervisorComment, &s.CreatedAt, &updatedAt,
			&s.Employee.FirstName, &s.Employee.LastName,
			&locID, &s.Location.Name, &s.Location.Building, &s.Location.Floor,
			&s.SlotStart,
			&inspectorID, &inspector.FirstName, &inspector.LastName, &inspector.Role,
		); err != nil {
			return nil, fmt.Errorf("failed to scan check session: %w", err)
		}
		if sessionDate.Valid {
			s.SessionDate = sessionDate.Time
		}
		if updatedAt.Valid {
			t := updatedAt.Time
			s.UpdatedAt = &t
		}
		if inspectorID.Valid {
			s.Inspector = &inspector
		}
		s.Location.ID = locID.Int64
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read check sessions: %w", err)
	}

	p.logger.Debug(fmt.Sprintf("  📋 Loaded %d check sessions", len(sessions)))
	return sessions, nil
}

type purgeStep struct {
	table  string
	column string
}

// purgeSteps lists the delete statements of one batch, children first
func purgeSteps(kind report.Kind) ([]purgeStep, error) {
	switch kind {
	case report.KindSatisfaction:
		return []purgeStep{{table: "feedbacks", column: "id"}}, nil
	case report.KindWorkPerformance:
		return []purgeStep{
			{table: "check_results", column: "check_sessions_id"},
			{table: "check_sessions", column: "check_sessions_id"},
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", report.ErrUnknownKind, kind)
	}
}

// DeleteBatch deletes one batch inside a transaction, child table first
func (p *Postgres) DeleteBatch(ctx context.Context, kind report.Kind, ids []int64) (err error) {
	if len(ids) == 0 {
		return nil
	}
	steps, err := purgeSteps(kind)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, step := range steps {
		query, args, buildErr := builder().Delete(step.table).Where(sq.Eq{step.column: ids}).ToSql()
		if buildErr != nil {
			return fmt.Errorf("failed to build delete for %s: %w", step.table, buildErr)
		}
		result, execErr := tx.ExecContext(ctx, query, args...)
		if execErr != nil {
			return fmt.Errorf("failed to delete from %s: %w", step.table, execErr)
		}
		if n, rowsErr := result.RowsAffected(); rowsErr == nil {
			p.logger.Debug(fmt.Sprintf("    🗑️  Deleted %d rows from %s", n, step.table))
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete batch: %w", err)
	}
	return nil
}

// ExistingIDs returns which of ids are still present in the parent table
func (p *Postgres) ExistingIDs(ctx context.Context, kind report.Kind, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	steps, err := purgeSteps(kind)
	if err != nil {
		return nil, err
	}
	parent := steps[len(steps)-1]

	query, args, err := builder().
		Select(parent.column).
		From(parent.table).
		Where(sq.Eq{parent.column: ids}).
		OrderBy(parent.column).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build lookup for %s: %w", parent.table, err)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", parent.table, err)
	}
	defer rows.Close()

	var existing []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s id: %w", parent.table, err)
		}
		existing = append(existing, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s ids: %w", parent.table, err)
	}
	return existing, nil
}

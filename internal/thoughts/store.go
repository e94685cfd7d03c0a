package thoughts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/drblury/omstasher/internal/runtime/jsoncodec"
)

// Store is the persistence contract of the thought service.
type Store interface {
	// Get returns the thought or nil when it does not exist.
	Get(ctx context.Context, id uuid.UUID) (*Thought, error)
	Insert(ctx context.Context, thought Thought) error
	// Update rewrites an existing thought and reports whether it existed.
	Update(ctx context.Context, thought Thought) (bool, error)
	// Ancestors returns the chain from the thread root down to id, or nil
	// when id does not exist.
	Ancestors(ctx context.Context, id uuid.UUID) ([]Thought, error)
}

// Dialect hides the SQL differences between the supported databases.
type Dialect struct {
	Name  string
	Table string
	// Schema statements create the table; run in order.
	Schema      []string
	placeholder func(n int) string
}

var (
	PostgresDialect = Dialect{
		Name:  "postgres",
		Table: "thought.thought",
		Schema: []string{
			`CREATE SCHEMA IF NOT EXISTS thought`,
			`CREATE TABLE IF NOT EXISTS thought.thought (
				thought_id TEXT PRIMARY KEY,
				parent_thought_id TEXT REFERENCES thought.thought(thought_id),
				keywords TEXT NOT NULL DEFAULT '[]',
				categories TEXT NOT NULL DEFAULT '[]',
				sources TEXT NOT NULL DEFAULT '[]',
				created_at TEXT NOT NULL,
				content TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_thought_parent ON thought.thought(parent_thought_id)`,
		},
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	}

	SQLiteDialect = Dialect{
		Name:  "sqlite3",
		Table: "thought",
		Schema: []string{
			`CREATE TABLE IF NOT EXISTS thought (
				thought_id TEXT PRIMARY KEY,
				parent_thought_id TEXT REFERENCES thought(thought_id),
				keywords TEXT NOT NULL DEFAULT '[]',
				categories TEXT NOT NULL DEFAULT '[]',
				sources TEXT NOT NULL DEFAULT '[]',
				created_at TEXT NOT NULL,
				content TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_thought_parent ON thought(parent_thought_id)`,
		},
		placeholder: func(int) string { return "?" },
	}
)

// DialectFor returns the dialect matching a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres":
		return PostgresDialect, nil
	case "sqlite3", "sqlite":
		return SQLiteDialect, nil
	default:
		return Dialect{}, fmt.Errorf("thoughts: no SQL dialect for driver %q", driver)
	}
}

// bind rewrites "?" markers into the dialect's placeholders.
func (d Dialect) bind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const thoughtColumns = "thought_id, parent_thought_id, keywords, categories, sources, created_at, content"

// SQLStore stores thoughts in a SQL database through database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore returns a store over db.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// EnsureSchema creates the thought table when missing.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create thought schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id uuid.UUID) (*Thought, error) {
	query := s.dialect.bind(fmt.Sprintf("SELECT %s FROM %s WHERE thought_id = ?", thoughtColumns, s.dialect.Table))
	row := s.db.QueryRowContext(ctx, query, id.String())

	thought, err := scanThought(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thought %s: %w", id, err)
	}
	return thought, nil
}

func (s *SQLStore) Insert(ctx context.Context, thought Thought) error {
	args, err := thoughtArgs(thought)
	if err != nil {
		return err
	}
	query := s.dialect.bind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?)", s.dialect.Table, thoughtColumns))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert thought %s: %w", thought.ID, err)
	}
	return nil
}

func (s *SQLStore) Update(ctx context.Context, thought Thought) (bool, error) {
	args, err := thoughtArgs(thought)
	if err != nil {
		return false, err
	}
	// thought_id moves last and created_at is left untouched
	updateArgs := []any{args[1], args[2], args[3], args[4], args[6], args[0]}
	query := s.dialect.bind(fmt.Sprintf(
		"UPDATE %s SET parent_thought_id = ?, keywords = ?, categories = ?, sources = ?, content = ? WHERE thought_id = ?",
		s.dialect.Table))
	res, err := s.db.ExecContext(ctx, query, updateArgs...)
	if err != nil {
		return false, fmt.Errorf("failed to update thought %s: %w", thought.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update thought %s: %w", thought.ID, err)
	}
	return affected > 0, nil
}

// MaxThreadDepth bounds the ancestor walk so a corrupted parent chain cannot
// loop forever.
const MaxThreadDepth = 1024

func (s *SQLStore) Ancestors(ctx context.Context, id uuid.UUID) ([]Thought, error) {
	query := s.dialect.bind(fmt.Sprintf(`
		WITH RECURSIVE chain(thought_id, parent_thought_id, keywords, categories, sources, created_at, content, depth) AS (
			SELECT %[1]s, 0 FROM %[2]s WHERE thought_id = ?
			UNION ALL
			SELECT t.thought_id, t.parent_thought_id, t.keywords, t.categories, t.sources, t.created_at, t.content, chain.depth + 1
			FROM %[2]s t JOIN chain ON t.thought_id = chain.parent_thought_id
			WHERE chain.depth < ?
		)
		SELECT %[1]s FROM chain ORDER BY depth DESC`, thoughtColumns, s.dialect.Table))

	rows, err := s.db.QueryContext(ctx, query, id.String(), MaxThreadDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thread of %s: %w", id, err)
	}
	defer rows.Close()

	var chain []Thought
	for rows.Next() {
		thought, err := scanThought(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read thread of %s: %w", id, err)
		}
		chain = append(chain, *thought)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read thread of %s: %w", id, err)
	}
	return chain, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThought(row rowScanner) (*Thought, error) {
	var (
		rawID, keywords, categories, sources, createdAt, content string
		rawParent                                                sql.NullString
	)
	if err := row.Scan(&rawID, &rawParent, &keywords, &categories, &sources, &createdAt, &content); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("invalid thought_id %q: %w", rawID, err)
	}
	thought := &Thought{ID: id, Content: content}

	if rawParent.Valid && rawParent.String != "" {
		parent, err := uuid.Parse(rawParent.String)
		if err != nil {
			return nil, fmt.Errorf("invalid parent_thought_id %q: %w", rawParent.String, err)
		}
		thought.ParentID = &parent
	}
	if err := jsoncodec.UnmarshalColumn(keywords, &thought.Keywords); err != nil {
		return nil, fmt.Errorf("invalid keywords column: %w", err)
	}
	if err := jsoncodec.UnmarshalColumn(categories, &thought.Categories); err != nil {
		return nil, fmt.Errorf("invalid categories column: %w", err)
	}
	if err := jsoncodec.UnmarshalColumn(sources, &thought.Sources); err != nil {
		return nil, fmt.Errorf("invalid sources column: %w", err)
	}
	thought.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("could not parse created_at %q: %w", createdAt, err)
	}
	return thought, nil
}

func thoughtArgs(thought Thought) ([]any, error) {
	keywords, err := jsoncodec.MarshalColumn(thought.Keywords)
	if err != nil {
		return nil, fmt.Errorf("failed to encode keywords: %w", err)
	}
	categories, err := jsoncodec.MarshalColumn(thought.Categories)
	if err != nil {
		return nil, fmt.Errorf("failed to encode categories: %w", err)
	}
	sources, err := jsoncodec.MarshalColumn(thought.Sources)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sources: %w", err)
	}

	var parent sql.NullString
	if thought.ParentID != nil {
		parent = sql.NullString{String: thought.ParentID.String(), Valid: true}
	}

	return []any{
		thought.ID.String(),
		parent,
		keywords,
		categories,
		sources,
		thought.CreatedAt.UTC().Format(time.RFC3339Nano),
		thought.Content,
	}, nil
}

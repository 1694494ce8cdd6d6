package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	platformtx "onboard/internal/platform/tx"
	"onboard/pkg/sentinel"
)

const uniqueViolation = "23505"

// Postgres persists documents in a single JSONB-backed table keyed by
// (doctype, name), with a sibling doctype_fields table for schema metadata.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed document store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// querier lets store methods run against the pool or, when a provisioning run
// put one in the context, the run's transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) runner(ctx context.Context) querier {
	if tx, ok := platformtx.From(ctx); ok {
		return tx
	}
	return s.db
}

// Migrate creates the backing tables and seeds the default schema.
func (s *Postgres) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
	doctype    text NOT NULL,
	name       text NOT NULL,
	fields     jsonb NOT NULL DEFAULT '{}'::jsonb,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (doctype, name)
);
CREATE TABLE IF NOT EXISTS doctype_fields (
	doctype   text NOT NULL,
	fieldname text NOT NULL,
	label     text NOT NULL DEFAULT '',
	fieldtype text NOT NULL DEFAULT 'Data',
	options   text NOT NULL DEFAULT '',
	PRIMARY KEY (doctype, fieldname)
);`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate docstore: %w", err)
	}
	for doctype, defs := range DefaultSchema() {
		for _, def := range defs {
			if _, err := s.db.ExecContext(ctx,
				`INSERT INTO doctype_fields (doctype, fieldname, label, fieldtype, options)
				 VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
				doctype, def.Fieldname, def.Label, def.Fieldtype, def.Options,
			); err != nil {
				return fmt.Errorf("seed schema %s.%s: %w", doctype, def.Fieldname, err)
			}
		}
	}
	return nil
}

func (s *Postgres) HasField(ctx context.Context, doctype, field string) (bool, error) {
	if field == "" {
		return false, nil
	}
	var exists bool
	err := s.runner(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM doctype_fields WHERE doctype = $1 AND fieldname = $2)`,
		doctype, field,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has field %s.%s: %w", doctype, field, err)
	}
	return exists, nil
}

func (s *Postgres) AddField(ctx context.Context, doctype string, def FieldDef) error {
	if def.Fieldname == "" {
		return fmt.Errorf("add field: %w: empty fieldname", sentinel.ErrInvalidState)
	}
	_, err := s.runner(ctx).ExecContext(ctx,
		`INSERT INTO doctype_fields (doctype, fieldname, label, fieldtype, options)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
		doctype, def.Fieldname, def.Label, def.Fieldtype, def.Options,
	)
	if err != nil {
		return fmt.Errorf("add field %s.%s: %w", doctype, def.Fieldname, err)
	}
	return nil
}

func (s *Postgres) Exists(ctx context.Context, doctype, name string) (bool, error) {
	var exists bool
	err := s.runner(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE doctype = $1 AND name = $2)`,
		doctype, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists %s %q: %w", doctype, name, err)
	}
	return exists, nil
}

func (s *Postgres) ExistsWhere(ctx context.Context, doctype string, filters Filters) (string, error) {
	docs, err := s.List(ctx, doctype, filters)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", nil
	}
	return docs[0].Name, nil
}

func (s *Postgres) Get(ctx context.Context, doctype, name string) (*Document, error) {
	var raw []byte
	err := s.runner(ctx).QueryRowContext(ctx,
		`SELECT fields FROM documents WHERE doctype = $1 AND name = $2`,
		doctype, name,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s %q: %w", doctype, name, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %q: %w", doctype, name, err)
	}
	fields := Fields{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode %s %q: %w", doctype, name, err)
	}
	return &Document{Doctype: doctype, Name: name, Fields: fields}, nil
}

func (s *Postgres) GetValue(ctx context.Context, doctype, name, field string) (any, error) {
	doc, err := s.Get(ctx, doctype, name)
	if err != nil {
		return nil, err
	}
	return doc.Get(field), nil
}

func (s *Postgres) SetValue(ctx context.Context, doctype, name, field string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s.%s: %w", doctype, field, err)
	}
	res, err := s.runner(ctx).ExecContext(ctx,
		`UPDATE documents SET fields = jsonb_set(fields, ARRAY[$3], $4::jsonb, true), updated_at = now()
		 WHERE doctype = $1 AND name = $2`,
		doctype, name, field, string(encoded),
	)
	if err != nil {
		return fmt.Errorf("set value %s %q: %w", doctype, name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("set value %s %q: %w", doctype, name, sentinel.ErrNotFound)
	}
	return nil
}

func (s *Postgres) Insert(ctx context.Context, doc *Document) (string, error) {
	if doc.Doctype == "" {
		return "", fmt.Errorf("insert: %w: empty doctype", sentinel.ErrInvalidState)
	}
	name := doc.Name
	if name == "" {
		derived, err := s.deriveName(ctx, doc)
		if err != nil {
			return "", err
		}
		name = derived
	}
	encoded, err := json.Marshal(doc.Fields)
	if err != nil {
		return "", fmt.Errorf("encode %s %q: %w", doc.Doctype, name, err)
	}
	_, err = s.runner(ctx).ExecContext(ctx,
		`INSERT INTO documents (doctype, name, fields) VALUES ($1, $2, $3::jsonb)`,
		doc.Doctype, name, string(encoded),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return "", fmt.Errorf("insert %s %q: %w", doc.Doctype, name, sentinel.ErrDuplicate)
		}
		return "", fmt.Errorf("insert %s %q: %w", doc.Doctype, name, err)
	}
	return name, nil
}

func (s *Postgres) Update(ctx context.Context, doc *Document) error {
	encoded, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("encode %s %q: %w", doc.Doctype, doc.Name, err)
	}
	res, err := s.runner(ctx).ExecContext(ctx,
		`UPDATE documents SET fields = $3::jsonb, updated_at = now() WHERE doctype = $1 AND name = $2`,
		doc.Doctype, doc.Name, string(encoded),
	)
	if err != nil {
		return fmt.Errorf("update %s %q: %w", doc.Doctype, doc.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update %s %q: %w", doc.Doctype, doc.Name, sentinel.ErrNotFound)
	}
	return nil
}

func (s *Postgres) Delete(ctx context.Context, doctype, name string) error {
	res, err := s.runner(ctx).ExecContext(ctx,
		`DELETE FROM documents WHERE doctype = $1 AND name = $2`, doctype, name)
	if err != nil {
		return fmt.Errorf("delete %s %q: %w", doctype, name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("delete %s %q: %w", doctype, name, sentinel.ErrNotFound)
	}
	return nil
}

// List fetches the doctype's documents ordered by name and applies the
// filters in memory; provisioning-era doctypes stay small enough that the
// flexibility is worth more than pushing filter trees into SQL.
func (s *Postgres) List(ctx context.Context, doctype string, filters Filters) ([]*Document, error) {
	rows, err := s.runner(ctx).QueryContext(ctx,
		`SELECT name, fields FROM documents WHERE doctype = $1 ORDER BY name`, doctype)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", doctype, err)
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		var name string
		var raw []byte
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", doctype, err)
		}
		fields := Fields{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("decode %s %q: %w", doctype, name, err)
		}
		doc := &Document{Doctype: doctype, Name: name, Fields: fields}
		if matches(doc, filters) {
			out = append(out, doc)
		}
	}
	return out, rows.Err()
}

func (s *Postgres) Names(ctx context.Context, doctype string, filters Filters) ([]string, error) {
	docs, err := s.List(ctx, doctype, filters)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.Name
	}
	return names, nil
}

// RepairWorkspaceJSON is the raw invariant-repair pass: any workspace whose
// JSON array columns are NULL or blank gets them reset to "[]".
func (s *Postgres) RepairWorkspaceJSON(ctx context.Context) (int, error) {
	res, err := s.runner(ctx).ExecContext(ctx, `
UPDATE documents SET fields = fields
	|| CASE WHEN fields->>'content' IS NULL OR fields->>'content' = ''
		THEN '{"content":"[]"}'::jsonb ELSE '{}'::jsonb END
	|| CASE WHEN fields->>'onboarding_list' IS NULL OR fields->>'onboarding_list' = ''
		THEN '{"onboarding_list":"[]"}'::jsonb ELSE '{}'::jsonb END,
	updated_at = now()
WHERE doctype = $1
	AND (fields->>'content' IS NULL OR fields->>'content' = ''
		OR fields->>'onboarding_list' IS NULL OR fields->>'onboarding_list' = '')`,
		DoctypeWorkspace,
	)
	if err != nil {
		return 0, fmt.Errorf("repair workspace json: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Postgres) deriveName(ctx context.Context, doc *Document) (string, error) {
	if doc.Doctype != DoctypeTaxTemplate {
		return "", fmt.Errorf("insert %s: %w: missing name", doc.Doctype, sentinel.ErrInvalidState)
	}
	title := doc.GetString("title")
	if title == "" {
		return "", fmt.Errorf("insert %s: %w: missing title", doc.Doctype, sentinel.ErrInvalidState)
	}
	company := doc.GetString("company")
	if company == "" {
		return title, nil
	}
	suffix := company
	if abbr, err := s.GetValue(ctx, DoctypeCompany, company, "abbr"); err == nil {
		if a, ok := abbr.(string); ok && a != "" {
			suffix = a
		}
	}
	return title + " - " + suffix, nil
}

// PostgresTx runs a provisioning batch in one transaction; the batch commits
// once at the end or rolls back wholesale.
type PostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

const defaultRunTxTimeout = 5 * time.Minute

// NewPostgresTx builds the transaction runner used by apply runs.
func NewPostgresTx(db *sql.DB) *PostgresTx {
	return &PostgresTx{db: db, timeout: defaultRunTxTimeout}
}

func (t *PostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	sqlTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(platformtx.WithTx(ctx, sqlTx)); err != nil {
		return err
	}
	return sqlTx.Commit()
}

package reinforcement

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/HZeroxium/KAT-RBC/pkg/schema"
)

// LibSQLRepository implements Repository using libSQL (embedded SQLite fork).
// A single connection serializes all writes, which gives the per-key
// read-modify-write atomicity the contract requires.
type LibSQLRepository struct {
	db *sql.DB
}

// NewLibSQLRepository opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLRepository(dbPath string) (*LibSQLRepository, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "open libsql: %v", err).WithCause(err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLRepository{db: db}, nil
}

// Migrate runs all pending database migrations.
func (r *LibSQLRepository) Migrate(ctx context.Context) error {
	if err := runMigrations(ctx, r.db); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "migrate: %v", err).WithCause(err)
	}
	return nil
}

// Close closes the database.
func (r *LibSQLRepository) Close() error { return r.db.Close() }

// AppendOutcome records one outcome in the append-only log.
func (r *LibSQLRepository) AppendOutcome(ctx context.Context, suiteID string, outcome schema.TestOutcome) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO test_outcomes (suite_id, test_name, status, expected, actual, details, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		suiteID, outcome.TestName, string(outcome.Status),
		outcome.Expected, outcome.Actual, outcome.Details, time.Now().UTC(),
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "append outcome: %v", err).WithCause(err)
	}
	return nil
}

// ListOutcomes returns logged outcomes for a suite in insertion order.
func (r *LibSQLRepository) ListOutcomes(ctx context.Context, suiteID string) ([]OutcomeRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, suite_id, test_name, status, expected, actual, details
		 FROM test_outcomes WHERE suite_id = ? ORDER BY id ASC`, suiteID)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list outcomes: %v", err).WithCause(err)
	}
	defer rows.Close()

	var records []OutcomeRecord
	for rows.Next() {
		var rec OutcomeRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.SuiteID, &rec.Outcome.TestName, &status,
			&rec.Outcome.Expected, &rec.Outcome.Actual, &rec.Outcome.Details); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "scan outcome: %v", err).WithCause(err)
		}
		rec.Outcome.Status = schema.TestStatus(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// AddTemplate inserts a new named template. A duplicate name is a conflict.
func (r *LibSQLRepository) AddTemplate(ctx context.Context, tpl schema.PromptTemplate) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO prompt_templates (name, template_text, version) VALUES (?, ?, ?)`,
		tpl.Name, tpl.TemplateText, versionOrDefault(tpl.Version),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return schema.NewErrorf(schema.ErrCodeConflict, "template %q already exists", tpl.Name)
		}
		return schema.NewErrorf(schema.ErrCodeStore, "add template: %v", err).WithCause(err)
	}
	return nil
}

// SaveTemplate inserts or replaces a template, refreshing its timestamp.
func (r *LibSQLRepository) SaveTemplate(ctx context.Context, tpl schema.PromptTemplate) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO prompt_templates (name, template_text, version) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   template_text = excluded.template_text,
		   version = excluded.version,
		   updated_at = CURRENT_TIMESTAMP`,
		tpl.Name, tpl.TemplateText, versionOrDefault(tpl.Version),
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "save template: %v", err).WithCause(err)
	}
	return nil
}

// GetTemplate returns one template by name.
func (r *LibSQLRepository) GetTemplate(ctx context.Context, name string) (*schema.PromptTemplate, error) {
	tpl := &schema.PromptTemplate{}
	err := r.db.QueryRowContext(ctx,
		`SELECT name, template_text, version FROM prompt_templates WHERE name = ?`, name,
	).Scan(&tpl.Name, &tpl.TemplateText, &tpl.Version)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "template %q not found", name)
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "get template: %v", err).WithCause(err)
	}
	return tpl, nil
}

// ListTemplates returns all templates ordered by name.
func (r *LibSQLRepository) ListTemplates(ctx context.Context) ([]schema.PromptTemplate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, template_text, version FROM prompt_templates ORDER BY name ASC`)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list templates: %v", err).WithCause(err)
	}
	defer rows.Close()

	var templates []schema.PromptTemplate
	for rows.Next() {
		var tpl schema.PromptTemplate
		if err := rows.Scan(&tpl.Name, &tpl.TemplateText, &tpl.Version); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "scan template: %v", err).WithCause(err)
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

// UpsertEdgeWeight inserts an edge weight or updates it in place, refreshing
// the timestamp. Exactly one row per (src, dst) pair ever exists.
func (r *LibSQLRepository) UpsertEdgeWeight(ctx context.Context, weight schema.EdgeWeight) error {
	updated := weight.LastUpdated
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO odg_weights (src, dst, weight, successes, failures, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(src, dst) DO UPDATE SET
		   weight = excluded.weight,
		   successes = excluded.successes,
		   failures = excluded.failures,
		   last_updated = excluded.last_updated`,
		weight.Src, weight.Dst, weight.Weight, weight.Successes, weight.Failures, updated,
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "upsert edge weight %s->%s: %v",
			weight.Src, weight.Dst, err).WithCause(err)
	}
	return nil
}

func versionOrDefault(v string) string {
	if v == "" {
		return "1"
	}
	return v
}

// GetEdgeWeights returns all stored edge weights ordered by pair.
func (r *LibSQLRepository) GetEdgeWeights(ctx context.Context) ([]schema.EdgeWeight, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT src, dst, weight, successes, failures, last_updated
		 FROM odg_weights ORDER BY src ASC, dst ASC`)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list edge weights: %v", err).WithCause(err)
	}
	defer rows.Close()

	var weights []schema.EdgeWeight
	for rows.Next() {
		var w schema.EdgeWeight
		if err := rows.Scan(&w.Src, &w.Dst, &w.Weight, &w.Successes, &w.Failures, &w.LastUpdated); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "scan edge weight: %v", err).WithCause(err)
		}
		weights = append(weights, w)
	}
	return weights, rows.Err()
}

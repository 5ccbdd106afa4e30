// Package repositories provides the PostgreSQL implementation of the case
// repository and the pgvector similarity index.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/internal/infrastructure/database/postgres"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/casemind/pkg/errors"
	"github.com/turtacn/casemind/pkg/types/common"
	"github.com/turtacn/casemind/pkg/types/legalcase"
)

// vectorColumns maps a query field to its embedding column.  Column names
// are never taken from input.
var vectorColumns = map[casefile.VectorField]string{
	casefile.FieldFacts:    "facts_embedding",
	casefile.FieldMetadata: "metadata_embedding",
}

const caseColumns = `id, fingerprint, source_name, metadata, judgment_date, template_id,
	template_confidence, facts, facts_embedding, metadata_embedding, created_at`

// ─────────────────────────────────────────────────────────────────────────────
// CaseRepository
// ─────────────────────────────────────────────────────────────────────────────

// CaseRepository stores case records in the cases table.  It implements
// casefile.Repository and casefile.VectorIndex.
type CaseRepository struct {
	conn *postgres.Connection
	db   queryExecutor
	log  logging.Logger
}

var (
	_ casefile.Repository  = (*CaseRepository)(nil)
	_ casefile.VectorIndex = (*CaseRepository)(nil)
)

// NewCaseRepository constructs a CaseRepository over conn.
func NewCaseRepository(conn *postgres.Connection, log logging.Logger) *CaseRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &CaseRepository{conn: conn, db: conn.DB(), log: log.Named("case_repo")}
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// Put inserts rec unless its fingerprint or id is already stored.
func (r *CaseRepository) Put(ctx context.Context, rec *casefile.CaseRecord) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}
	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrCodeSerialization, "failed to encode case metadata")
	}
	factsJSON, err := json.Marshal(rec.Facts)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrCodeSerialization, "failed to encode case facts")
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO cases (
			id, fingerprint, source_name, case_title, court_name, metadata,
			judgment_date, template_id, template_confidence, facts,
			facts_embedding, metadata_embedding, created_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,
			$7,$8,$9,$10,
			$11,$12,$13
		)
		ON CONFLICT DO NOTHING`,
		rec.ID, rec.Fingerprint.String(), rec.SourceName, rec.Metadata.Title, rec.Metadata.Court, metaJSON,
		nullDate(rec.JudgmentDate), rec.TemplateID, rec.TemplateConfidence, factsJSON,
		vectorArg(rec.Embeddings.Facts), vectorArg(rec.Embeddings.Metadata), rec.CreatedAt,
	)
	if err != nil {
		r.log.Error("CaseRepository.Put", logging.String("case_id", rec.ID), logging.Err(err))
		return false, appErrors.Wrap(err, appErrors.ErrCodeStorageFault, "failed to insert case")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrCodeStorageFault, "failed to read insert result")
	}
	if n == 0 {
		r.log.Debug("CaseRepository.Put: fingerprint already stored",
			logging.String("fingerprint", rec.Fingerprint.Short()))
		return false, nil
	}
	return true, nil
}

// Index replaces the stored embeddings of rec.
func (r *CaseRepository) Index(ctx context.Context, rec *casefile.CaseRecord) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE cases SET facts_embedding = $2, metadata_embedding = $3 WHERE id = $1`,
		rec.ID, vectorArg(rec.Embeddings.Facts), vectorArg(rec.Embeddings.Metadata))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeStorageFault, "failed to update case embeddings")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return casefile.ErrCaseNotFound
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Point reads
// ─────────────────────────────────────────────────────────────────────────────

func (r *CaseRepository) GetByFingerprint(ctx context.Context, fp casefile.Fingerprint) (*casefile.CaseRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE fingerprint = $1`, fp.String())
	return r.scanOne(row, "fingerprint")
}

func (r *CaseRepository) GetByID(ctx context.Context, id string) (*casefile.CaseRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1`, id)
	return r.scanOne(row, "id")
}

// GetByIDs loads every known id in one query.
func (r *CaseRepository) GetByIDs(ctx context.Context, ids []string) ([]*casefile.CaseRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+caseColumns+` FROM cases WHERE id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeStorageFault, "failed to load cases")
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// ─────────────────────────────────────────────────────────────────────────────
// Vector search
// ─────────────────────────────────────────────────────────────────────────────

// QueryByVector ranks cases by cosine similarity, computed as
// 1 - cosine distance.  Cases without an embedding for field are skipped.
func (r *CaseRepository) QueryByVector(ctx context.Context, field casefile.VectorField, vector []float32, limit int, excludeID string) ([]casefile.VectorHit, error) {
	col, ok := vectorColumns[field]
	if !ok {
		return nil, appErrors.InvalidParam("unknown vector field").WithDetail(string(field))
	}
	if limit <= 0 {
		return nil, appErrors.InvalidParam("vector query limit must be positive").WithDetail(strconv.Itoa(limit))
	}
	query := fmt.Sprintf(`
		SELECT id, 1 - (%[1]s <=> $1) AS cosine_score
		FROM cases
		WHERE %[1]s IS NOT NULL AND id <> $2
		ORDER BY %[1]s <=> $1
		LIMIT $3`, col)

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(vector), excludeID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeRetrievalFailed, "vector query failed")
	}
	defer rows.Close()

	hits := []casefile.VectorHit{}
	for rows.Next() {
		var h casefile.VectorHit
		if err := rows.Scan(&h.CaseID, &h.CosineScore); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrCodeRetrievalFailed, "failed to scan vector hit")
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeRetrievalFailed, "vector query failed")
	}
	r.log.Debug("CaseRepository.QueryByVector",
		logging.String("field", string(field)),
		logging.Int("hits", len(hits)),
		logging.Duration("elapsed", time.Since(start)))
	return hits, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Catalogue
// ─────────────────────────────────────────────────────────────────────────────

// List returns one page of cases, newest first, plus the filtered total.
func (r *CaseRepository) List(ctx context.Context, filter casefile.ListFilter, page common.Pagination) ([]*casefile.CaseRecord, int64, error) {
	where, args := listWhere(filter)

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cases`+where, args...).Scan(&total); err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrCodeStorageFault, "failed to count cases")
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM cases%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		caseColumns, where, n+1, n+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, page.PageSize, page.Offset())...)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrCodeStorageFault, "failed to list cases")
	}
	defer rows.Close()

	recs, err := r.scanAll(rows)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// listWhere builds the WHERE clause for filter.  Empty fields add nothing.
func listWhere(filter casefile.ListFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Section != "" {
		add(`metadata->'sections_invoked' ? $%d`, filter.Section)
	}
	if filter.Court != "" {
		add(`court_name ILIKE $%d`, "%"+filter.Court+"%")
	}
	if filter.TemplateID != "" {
		add(`template_id = $%d`, filter.TemplateID)
	}
	if filter.Query != "" {
		add(`(case_title ILIKE $%[1]d OR facts->>'summary' ILIKE $%[1]d)`, "%"+filter.Query+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *CaseRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cases`).Scan(&n); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrCodeStorageFault, "failed to count cases")
	}
	return n, nil
}

// Stats aggregates the catalogue.  Sections and courts are limited to topN.
func (r *CaseRepository) Stats(ctx context.Context, topN int) (*casefile.Stats, error) {
	st := &casefile.Stats{}
	var earliest, latest sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT template_id), MIN(judgment_date), MAX(judgment_date)
		FROM cases`).Scan(&st.TotalCases, &st.UniqueTemplates, &earliest, &latest)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeStorageFault, "failed to aggregate cases")
	}
	if earliest.Valid {
		st.EarliestDate = &earliest.Time
	}
	if latest.Valid {
		st.LatestDate = &latest.Time
	}

	if st.TopSections, err = r.valueCounts(ctx, sectionCountsSQL+` LIMIT $1`, topN); err != nil {
		return nil, err
	}
	if st.Courts, err = r.valueCounts(ctx, courtCountsSQL+` LIMIT $1`, topN); err != nil {
		return nil, err
	}
	return st, nil
}

const (
	sectionCountsSQL = `
		SELECT s, COUNT(*) FROM cases, jsonb_array_elements_text(metadata->'sections_invoked') AS s
		GROUP BY s ORDER BY COUNT(*) DESC, s`
	courtCountsSQL = `
		SELECT court_name, COUNT(*) FROM cases WHERE court_name <> ''
		GROUP BY court_name ORDER BY COUNT(*) DESC, court_name`
	templateCountsSQL = `
		SELECT template_id, COUNT(*) FROM cases
		GROUP BY template_id ORDER BY COUNT(*) DESC, template_id`
)

// FilterValues lists every section, court and template with its count.
func (r *CaseRepository) FilterValues(ctx context.Context) (*casefile.FilterValues, error) {
	fv := &casefile.FilterValues{}
	var err error
	if fv.Sections, err = r.valueCounts(ctx, sectionCountsSQL); err != nil {
		return nil, err
	}
	if fv.Courts, err = r.valueCounts(ctx, courtCountsSQL); err != nil {
		return nil, err
	}
	if fv.Templates, err = r.valueCounts(ctx, templateCountsSQL); err != nil {
		return nil, err
	}
	return fv, nil
}

func (r *CaseRepository) valueCounts(ctx context.Context, query string, args ...interface{}) ([]casefile.ValueCount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeStorageFault, "failed to count values")
	}
	defer rows.Close()

	out := []casefile.ValueCount{}
	for rows.Next() {
		var vc casefile.ValueCount
		if err := rows.Scan(&vc.Value, &vc.Count); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrCodeStorageFault, "failed to scan value count")
		}
		out = append(out, vc)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeStorageFault, "failed to count values")
	}
	return out, nil
}

// Ping checks the database connection.
func (r *CaseRepository) Ping(ctx context.Context) error {
	return r.conn.HealthCheck(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func (r *CaseRepository) scanOne(row scanner, by string) (*casefile.CaseRecord, error) {
	rec, err := scanCase(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, casefile.ErrCaseNotFound
		}
		r.log.Error("CaseRepository: lookup failed", logging.String("by", by), logging.Err(err))
		return nil, appErrors.Wrap(err, appErrors.ErrCodeStorageFault, "failed to load case")
	}
	return rec, nil
}

func (r *CaseRepository) scanAll(rows *sql.Rows) ([]*casefile.CaseRecord, error) {
	var out []*casefile.CaseRecord
	for rows.Next() {
		rec, err := scanCase(rows)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrCodeStorageFault, "failed to scan case")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeStorageFault, "failed to read cases")
	}
	return out, nil
}

func scanCase(s scanner) (*casefile.CaseRecord, error) {
	var (
		rec                 casefile.CaseRecord
		fingerprint         string
		metaJSON, factsJSON []byte
		judgmentDate        sql.NullTime
		factsVec, metaVec   *pgvector.Vector
	)
	if err := s.Scan(
		&rec.ID, &fingerprint, &rec.SourceName, &metaJSON, &judgmentDate, &rec.TemplateID,
		&rec.TemplateConfidence, &factsJSON, &factsVec, &metaVec, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	rec.Fingerprint = casefile.Fingerprint(fingerprint)
	if judgmentDate.Valid {
		d := judgmentDate.Time
		rec.JudgmentDate = &d
	}
	var meta legalcase.CaseMetadata
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", rec.ID, err)
		}
	}
	rec.Metadata = meta
	if len(factsJSON) > 0 {
		if err := json.Unmarshal(factsJSON, &rec.Facts); err != nil {
			return nil, fmt.Errorf("decode facts of %s: %w", rec.ID, err)
		}
	}
	if factsVec != nil {
		rec.Embeddings.Facts = factsVec.Slice()
	}
	if metaVec != nil {
		rec.Embeddings.Metadata = metaVec.Slice()
	}
	return &rec, nil
}

func vectorArg(v []float32) interface{} {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

func nullDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

//Personal.AI order the ending

package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/internal/infrastructure/database/postgres"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/casemind/pkg/errors"
	"github.com/turtacn/casemind/pkg/types/common"
	"github.com/turtacn/casemind/pkg/types/legalcase"
)

var caseRowColumns = []string{
	"id", "fingerprint", "source_name", "metadata", "judgment_date", "template_id",
	"template_confidence", "facts", "facts_embedding", "metadata_embedding", "created_at",
}

type CaseRepoTestSuite struct {
	suite.Suite
	db   *sql.DB
	mock sqlmock.Sqlmock
	repo *CaseRepository
}

func (s *CaseRepoTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(s.T(), err)

	log := logging.NewNopLogger()
	s.repo = NewCaseRepository(postgres.NewConnectionWithDB(s.db, log), log)
}

func (s *CaseRepoTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func TestCaseRepoTestSuite(t *testing.T) {
	suite.Run(t, new(CaseRepoTestSuite))
}

func sampleCase() *casefile.CaseRecord {
	rec := casefile.NewCaseRecord(casefile.ComputeFingerprint([]byte("judgment")), "judgment.pdf", legalcase.CaseMetadata{
		Title:           "State v. Kumar",
		Court:           "High Court of Delhi",
		JudgmentDate:    "2019-03-14",
		SectionsInvoked: []string{"IPC 302"},
	})
	rec.TemplateID = "ipc_302"
	rec.TemplateConfidence = 0.8
	rec.Facts = legalcase.ExtractedFacts{TemplateID: "ipc_302", Summary: "stabbed after a quarrel"}
	rec.Embeddings = casefile.EmbeddingPair{Facts: []float32{1, 0, 0}}
	return rec
}

func (s *CaseRepoTestSuite) caseRow(rec *casefile.CaseRecord) *sqlmock.Rows {
	meta, err := json.Marshal(rec.Metadata)
	s.Require().NoError(err)
	facts, err := json.Marshal(rec.Facts)
	s.Require().NoError(err)
	return sqlmock.NewRows(caseRowColumns).AddRow(
		rec.ID, rec.Fingerprint.String(), rec.SourceName, meta, *rec.JudgmentDate, rec.TemplateID,
		rec.TemplateConfidence, facts, "[1,0,0]", nil, rec.CreatedAt,
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// Put / Index
// ─────────────────────────────────────────────────────────────────────────────

func (s *CaseRepoTestSuite) TestPut_Inserted() {
	rec := sampleCase()
	s.mock.ExpectExec("INSERT INTO cases").
		WithArgs(
			rec.ID, rec.Fingerprint.String(), rec.SourceName, "State v. Kumar", "High Court of Delhi", sqlmock.AnyArg(),
			sqlmock.AnyArg(), "ipc_302", 0.8, sqlmock.AnyArg(),
			"[1,0,0]", nil, rec.CreatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	inserted, err := s.repo.Put(context.Background(), rec)
	s.NoError(err)
	s.True(inserted)
}

func (s *CaseRepoTestSuite) TestPut_FingerprintConflict() {
	s.mock.ExpectExec("INSERT INTO cases .* ON CONFLICT DO NOTHING").
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := s.repo.Put(context.Background(), sampleCase())
	s.NoError(err)
	s.False(inserted)
}

func (s *CaseRepoTestSuite) TestPut_StorageFault() {
	s.mock.ExpectExec("INSERT INTO cases").WillReturnError(errors.New("connection reset"))

	_, err := s.repo.Put(context.Background(), sampleCase())
	s.True(apperrors.IsCode(err, apperrors.ErrCodeStorageFault))
}

func (s *CaseRepoTestSuite) TestPut_InvalidRecord() {
	rec := sampleCase()
	rec.TemplateID = ""
	_, err := s.repo.Put(context.Background(), rec)
	s.True(apperrors.IsCode(err, apperrors.ErrCodeBadRequest))
}

func (s *CaseRepoTestSuite) TestIndex() {
	rec := sampleCase()
	s.mock.ExpectExec("UPDATE cases SET facts_embedding").
		WithArgs(rec.ID, "[1,0,0]", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.NoError(s.repo.Index(context.Background(), rec))

	s.mock.ExpectExec("UPDATE cases").WillReturnResult(sqlmock.NewResult(0, 0))
	s.ErrorIs(s.repo.Index(context.Background(), rec), casefile.ErrCaseNotFound)
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

func (s *CaseRepoTestSuite) TestGetByFingerprint() {
	rec := sampleCase()
	s.mock.ExpectQuery("FROM cases WHERE fingerprint = \\$1").
		WithArgs(rec.Fingerprint.String()).
		WillReturnRows(s.caseRow(rec))

	got, err := s.repo.GetByFingerprint(context.Background(), rec.Fingerprint)
	s.Require().NoError(err)
	s.Equal(rec.ID, got.ID)
	s.Equal(rec.Metadata, got.Metadata)
	s.Equal("stabbed after a quarrel", got.FactsText())
	s.Equal([]float32{1, 0, 0}, got.Embeddings.Facts)
	s.Nil(got.Embeddings.Metadata)
	s.Require().NotNil(got.JudgmentDate)
	s.Equal(2019, got.JudgmentDate.Year())
}

func (s *CaseRepoTestSuite) TestGetByID_NotFound() {
	s.mock.ExpectQuery("FROM cases WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(caseRowColumns))

	_, err := s.repo.GetByID(context.Background(), "missing")
	s.ErrorIs(err, casefile.ErrCaseNotFound)
	s.True(apperrors.IsNotFound(err))
}

func (s *CaseRepoTestSuite) TestGetByID_StorageFault() {
	s.mock.ExpectQuery("FROM cases WHERE id").WillReturnError(errors.New("timeout"))

	_, err := s.repo.GetByID(context.Background(), "a")
	s.True(apperrors.IsCode(err, apperrors.ErrCodeStorageFault))
}

func (s *CaseRepoTestSuite) TestGetByIDs() {
	rec := sampleCase()
	s.mock.ExpectQuery(regexp.QuoteMeta("WHERE id IN ($1,$2)")).
		WithArgs(rec.ID, "gone").
		WillReturnRows(s.caseRow(rec))

	recs, err := s.repo.GetByIDs(context.Background(), []string{rec.ID, "gone"})
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal(rec.ID, recs[0].ID)

	recs, err = s.repo.GetByIDs(context.Background(), nil)
	s.NoError(err)
	s.Empty(recs)
}

// ─────────────────────────────────────────────────────────────────────────────
// Vector search
// ─────────────────────────────────────────────────────────────────────────────

func (s *CaseRepoTestSuite) TestQueryByVector() {
	s.mock.ExpectQuery(regexp.QuoteMeta("SELECT id, 1 - (metadata_embedding <=> $1) AS cosine_score")).
		WithArgs("[0.5,0.5]", "self", 15).
		WillReturnRows(sqlmock.NewRows([]string{"id", "cosine_score"}).
			AddRow("a", 0.93).
			AddRow("b", 0.71))

	hits, err := s.repo.QueryByVector(context.Background(), casefile.FieldMetadata, []float32{0.5, 0.5}, 15, "self")
	s.Require().NoError(err)
	s.Equal([]casefile.VectorHit{{CaseID: "a", CosineScore: 0.93}, {CaseID: "b", CosineScore: 0.71}}, hits)
}

func (s *CaseRepoTestSuite) TestQueryByVector_Errors() {
	_, err := s.repo.QueryByVector(context.Background(), casefile.VectorField("title"), []float32{1}, 5, "")
	s.True(apperrors.IsCode(err, apperrors.ErrCodeBadRequest))

	_, err = s.repo.QueryByVector(context.Background(), casefile.FieldFacts, []float32{1}, 0, "")
	s.True(apperrors.IsCode(err, apperrors.ErrCodeBadRequest))
	_, err = s.repo.QueryByVector(context.Background(), casefile.FieldFacts, []float32{1}, -1, "")
	s.True(apperrors.IsCode(err, apperrors.ErrCodeBadRequest))

	s.mock.ExpectQuery("facts_embedding").WillReturnError(errors.New("index missing"))
	_, err = s.repo.QueryByVector(context.Background(), casefile.FieldFacts, []float32{1}, 5, "")
	s.True(apperrors.IsCode(err, apperrors.ErrCodeRetrievalFailed))
}

// ─────────────────────────────────────────────────────────────────────────────
// Catalogue
// ─────────────────────────────────────────────────────────────────────────────

func (s *CaseRepoTestSuite) TestList_WithFilters() {
	rec := sampleCase()
	filter := casefile.ListFilter{Section: "IPC 302", Court: "Delhi", TemplateID: "ipc_302", Query: "Kumar"}

	s.mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM cases WHERE metadata->'sections_invoked' ? $1 AND court_name ILIKE $2 AND template_id = $3")).
		WithArgs("IPC 302", "%Delhi%", "ipc_302", "%Kumar%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(21)))
	s.mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id LIMIT $5 OFFSET $6")).
		WithArgs("IPC 302", "%Delhi%", "ipc_302", "%Kumar%", 10, 10).
		WillReturnRows(s.caseRow(rec))

	recs, total, err := s.repo.List(context.Background(), filter, common.Pagination{Page: 2, PageSize: 10})
	s.Require().NoError(err)
	s.Equal(int64(21), total)
	s.Len(recs, 1)
}

func (s *CaseRepoTestSuite) TestList_NoFilters() {
	s.mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM cases")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
	s.mock.ExpectQuery(regexp.QuoteMeta("FROM cases ORDER BY created_at DESC, id LIMIT $1 OFFSET $2")).
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows(caseRowColumns))

	recs, total, err := s.repo.List(context.Background(), casefile.ListFilter{}, common.Pagination{Page: 1, PageSize: 20})
	s.NoError(err)
	s.Zero(total)
	s.Empty(recs)
}

func (s *CaseRepoTestSuite) TestCount() {
	s.mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM cases")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(7)))

	n, err := s.repo.Count(context.Background())
	s.NoError(err)
	s.Equal(int64(7), n)
}

func (s *CaseRepoTestSuite) TestStats() {
	earliest := time.Date(2001, 5, 2, 0, 0, 0, 0, time.UTC)
	latest := time.Date(2020, 1, 9, 0, 0, 0, 0, time.UTC)
	s.mock.ExpectQuery("COUNT\\(DISTINCT template_id\\)").
		WillReturnRows(sqlmock.NewRows([]string{"count", "templates", "min", "max"}).
			AddRow(int64(12), int64(3), earliest, latest))
	s.mock.ExpectQuery("jsonb_array_elements_text").WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"s", "count"}).
			AddRow("IPC 302", int64(8)).
			AddRow("IPC 34", int64(5)))
	s.mock.ExpectQuery("GROUP BY court_name").WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"court_name", "count"}).AddRow("High Court of Delhi", int64(12)))

	st, err := s.repo.Stats(context.Background(), 5)
	s.Require().NoError(err)
	s.Equal(int64(12), st.TotalCases)
	s.Equal(int64(3), st.UniqueTemplates)
	s.Equal(earliest, *st.EarliestDate)
	s.Equal(latest, *st.LatestDate)
	s.Equal([]casefile.ValueCount{{Value: "IPC 302", Count: 8}, {Value: "IPC 34", Count: 5}}, st.TopSections)
	s.Len(st.Courts, 1)
}

func (s *CaseRepoTestSuite) TestStats_EmptyCatalogue() {
	s.mock.ExpectQuery("COUNT\\(DISTINCT template_id\\)").
		WillReturnRows(sqlmock.NewRows([]string{"count", "templates", "min", "max"}).
			AddRow(int64(0), int64(0), nil, nil))
	s.mock.ExpectQuery("jsonb_array_elements_text").WillReturnRows(sqlmock.NewRows([]string{"s", "count"}))
	s.mock.ExpectQuery("GROUP BY court_name").WillReturnRows(sqlmock.NewRows([]string{"court_name", "count"}))

	st, err := s.repo.Stats(context.Background(), 10)
	s.Require().NoError(err)
	s.Nil(st.EarliestDate)
	s.NotNil(st.TopSections)
	s.Empty(st.TopSections)
}

func (s *CaseRepoTestSuite) TestFilterValues() {
	s.mock.ExpectQuery("jsonb_array_elements_text").
		WillReturnRows(sqlmock.NewRows([]string{"s", "count"}).AddRow("IPC 302", int64(2)))
	s.mock.ExpectQuery("GROUP BY court_name").
		WillReturnRows(sqlmock.NewRows([]string{"court_name", "count"}).AddRow("Supreme Court", int64(1)))
	s.mock.ExpectQuery("GROUP BY template_id").
		WillReturnError(errors.New("canceled"))

	_, err := s.repo.FilterValues(context.Background())
	s.True(apperrors.IsCode(err, apperrors.ErrCodeStorageFault))
}

func (s *CaseRepoTestSuite) TestPing() {
	s.mock.ExpectPing()
	s.NoError(s.repo.Ping(context.Background()))
}

func TestListWhere(t *testing.T) {
	where, args := listWhere(casefile.ListFilter{Query: "dowry"})
	assert.Equal(t, " WHERE (case_title ILIKE $1 OR facts->>'summary' ILIKE $1)", where)
	assert.Equal(t, []interface{}{"%dowry%"}, args)

	where, args = listWhere(casefile.ListFilter{})
	assert.Empty(t, where)
	assert.Nil(t, args)
}

//Personal.AI order the ending

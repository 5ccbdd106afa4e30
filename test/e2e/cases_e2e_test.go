package e2e_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/casemind/internal/application/catalog"
	"github.com/turtacn/casemind/internal/application/ingestion"
	"github.com/turtacn/casemind/internal/application/similarity"
	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/internal/domain/ontology"
	"github.com/turtacn/casemind/pkg/types/legalcase"
)

const (
	murderFacts = "The accused stabbed the deceased with a knife during a quarrel over the boundary of their land, " +
		"and the post mortem report confirmed that death was caused by the stab wound to the chest."
	murderFactsRetold = "After a quarrel over the boundary of the land the accused attacked the deceased with a knife, " +
		"and the post mortem report recorded a fatal stab wound to the chest of the deceased."
	dacoityFacts = "Six armed persons entered the house of the complainant at night, threatened the family members " +
		"with country made pistols and took away jewellery and cash kept in the almirah."
)

func murderCase(title string) *legalcase.CaseMetadata {
	return &legalcase.CaseMetadata{
		Title:           title,
		Court:           "High Court of Delhi",
		CaseType:        "Criminal Appeal",
		JudgmentDate:    "2019-03-14",
		SectionsInvoked: []string{"Section 302 IPC"},
	}
}

func dacoityCase() *legalcase.CaseMetadata {
	return &legalcase.CaseMetadata{
		Title:           "State v. Bhura Singh",
		Court:           "High Court of Rajasthan",
		CaseType:        "Criminal Appeal",
		JudgmentDate:    "2017-08-02",
		SectionsInvoked: []string{"Section 395 IPC"},
	}
}

// ingestCase posts one document and returns the decoded result.
func (e *testEnv) ingestCase(t *testing.T, name, facts string, meta *legalcase.CaseMetadata, wantStatus int) *ingestion.IngestResult {
	t.Helper()
	resp := e.doPost(t, apiPrefix+"/cases/ingest", ingestion.IngestRequest{
		SourceName: name,
		Content:    []byte(meta.Title + "\n\n" + facts),
		Metadata:   meta,
	})
	assertStatus(t, resp, wantStatus)
	res, _ := decodeData[*ingestion.IngestResult](t, resp)
	require.NotNil(t, res)
	return res
}

func TestE2E_IngestClassifiesAndDeduplicates(t *testing.T) {
	env := setupTestEnv(t)

	first := env.ingestCase(t, "ramesh.txt", murderFacts, murderCase("State v. Ramesh"), http.StatusCreated)
	assert.False(t, first.IsDuplicate)
	assert.Equal(t, "ipc_302", first.TemplateID)
	assert.NotEmpty(t, first.CaseID)
	assert.Len(t, first.Fingerprint, 64)

	again := env.ingestCase(t, "ramesh-copy.txt", murderFacts, murderCase("State v. Ramesh"), http.StatusOK)
	assert.True(t, again.IsDuplicate)
	assert.Equal(t, first.CaseID, again.CaseID)
	assert.Equal(t, casefile.MatchContentHash, again.Duplicate.Method)

	n, err := env.cases.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "a duplicate must not be stored twice")

	resp := env.doGet(t, apiPrefix+"/cases/"+first.CaseID)
	assertStatus(t, resp, http.StatusOK)
	rec, _ := decodeData[*casefile.CaseRecord](t, resp)
	assert.Equal(t, "State v. Ramesh", rec.Metadata.Title)
	assert.Equal(t, "ipc_302", rec.TemplateID)
}

func TestE2E_SimilarToStoredCase(t *testing.T) {
	env := setupTestEnv(t)

	query := env.ingestCase(t, "ramesh.txt", murderFacts, murderCase("State v. Ramesh"), http.StatusCreated)
	near := env.ingestCase(t, "suresh.txt", murderFactsRetold, murderCase("State v. Suresh"), http.StatusCreated)
	far := env.ingestCase(t, "bhura.txt", dacoityFacts, dacoityCase(), http.StatusCreated)
	assert.Equal(t, "ipc_395", far.TemplateID)

	resp := env.doGet(t, apiPrefix+"/cases/"+query.CaseID+"/similar?top_k=5")
	assertStatus(t, resp, http.StatusOK)
	res, _ := decodeData[*similarity.RankedResult](t, resp)
	require.NotNil(t, res)
	require.NotEmpty(t, res.Results)

	assert.Equal(t, near.CaseID, res.Results[0].DocumentID)
	for _, r := range res.Results {
		assert.NotEqual(t, query.CaseID, r.DocumentID, "query case must not be its own neighbour")
		assert.Less(t, r.RerankScore, 0.99)
	}
	for i := 1; i < len(res.Results); i++ {
		assert.GreaterOrEqual(t, res.Results[i-1].RerankScore, res.Results[i].RerankScore)
	}

	// Raising the threshold above the weakest hit can only shrink the list.
	resp = env.doGet(t, apiPrefix+"/cases/"+query.CaseID+"/similar?top_k=5&threshold=0.3")
	assertStatus(t, resp, http.StatusOK)
	strict, _ := decodeData[*similarity.RankedResult](t, resp)
	assert.LessOrEqual(t, len(strict.Results), len(res.Results))
	for _, r := range strict.Results {
		assert.GreaterOrEqual(t, r.RerankScore, 0.3)
	}
}

func TestE2E_SimilarUnknownCase(t *testing.T) {
	env := setupTestEnv(t)
	resp := env.doGet(t, apiPrefix+"/cases/missing/similar")
	assertStatus(t, resp, http.StatusNotFound)
}

func TestE2E_ClassifyFallsBackForUnmatchedAppeal(t *testing.T) {
	env := setupTestEnv(t)

	resp := env.doPost(t, apiPrefix+"/classify", map[string]interface{}{
		"metadata": legalcase.CaseMetadata{CaseType: "Criminal Appeal"},
		"text":     "The appellant challenges the order of the trial court.",
	})
	assertStatus(t, resp, http.StatusOK)
	sel, _ := decodeData[*ontology.Selection](t, resp)
	require.NotNil(t, sel)
	require.NotNil(t, sel.Match)
	assert.Equal(t, "criminal_case", sel.Match.NodeID)
	assert.InDelta(t, 0.3, sel.Confidence, 1e-9)
}

func TestE2E_CatalogueAndHealth(t *testing.T) {
	env := setupTestEnv(t)
	env.ingestCase(t, "ramesh.txt", murderFacts, murderCase("State v. Ramesh"), http.StatusCreated)
	env.ingestCase(t, "bhura.txt", dacoityFacts, dacoityCase(), http.StatusCreated)

	resp := env.doGet(t, apiPrefix+"/cases?template_id=ipc_395&page=1&page_size=10")
	assertStatus(t, resp, http.StatusOK)
	items, envelope := decodeData[[]catalog.CaseSummary](t, resp)
	require.Len(t, items, 1)
	assert.Equal(t, "State v. Bhura Singh", items[0].Title)
	assert.Equal(t, "ipc_395", items[0].TemplateID)
	require.NotNil(t, envelope.Pagination)
	assert.EqualValues(t, 1, envelope.Pagination.Total)

	resp = env.doGet(t, apiPrefix+"/stats")
	assertStatus(t, resp, http.StatusOK)
	stats, _ := decodeData[*casefile.Stats](t, resp)
	assert.EqualValues(t, 2, stats.TotalCases)
	assert.EqualValues(t, 2, stats.UniqueTemplates)

	resp = env.doGet(t, "/healthz/detail")
	assertStatus(t, resp, http.StatusOK)
	var health struct {
		Status     string `json:"status"`
		TotalCases int64  `json:"total_cases"`
	}
	require.NoError(t, decodeJSON(resp, &health))
	assert.Equal(t, "up", health.Status)
	assert.EqualValues(t, 2, health.TotalCases)
}

//Personal.AI order the ending

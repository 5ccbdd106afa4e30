// End-to-end tests drive the HTTP API over the real application services.
// Storage and the model servers are replaced by in-memory doubles so the
// suite runs without external processes.
package e2e_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/casemind/internal/application/catalog"
	"github.com/turtacn/casemind/internal/application/ingestion"
	"github.com/turtacn/casemind/internal/application/session"
	"github.com/turtacn/casemind/internal/application/similarity"
	"github.com/turtacn/casemind/internal/bootstrap"
	"github.com/turtacn/casemind/internal/config"
	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/internal/domain/ontology"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/casemind/internal/interfaces/http"
	"github.com/turtacn/casemind/internal/interfaces/http/handlers"
)

// testEnv holds the shared resources of one end-to-end test.
type testEnv struct {
	baseURL    string
	httpClient *http.Client
	cases      *memCases
	sessions   session.Service
}

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestEnv boots the full API on an httptest server.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := logging.NewNopLogger()

	tax := loadTaxonomy(t)
	cases := newMemCases()
	duplicates := casefile.NewDuplicateResolver(cases, cases, logger)

	analyzer, err := ingestion.NewAnalyzer(ingestion.AnalyzerDeps{
		Resolver:  tax.Resolver,
		Templates: tax.Templates,
		Embedder:  hashEmbedder{},
		Logger:    logger,
	})
	require.NoError(t, err)

	ingest, err := ingestion.NewService(ingestion.Deps{
		Cases:      cases,
		Duplicates: duplicates,
		Analyzer:   analyzer,
		Logger:     logger,
	})
	require.NoError(t, err)

	cat, err := catalog.NewService(cases, logger)
	require.NoError(t, err)

	pipeline, err := similarity.NewPipeline(similarity.Deps{
		Index:    cases,
		Cases:    cases,
		Embedder: hashEmbedder{},
		Reranker: overlapReranker{},
		Logger:   logger,
	}, similarity.DefaultConfig())
	require.NoError(t, err)

	sessions, err := session.NewService(session.Deps{
		Store:      session.NewMemoryStore(time.Hour, nil),
		Analyzer:   analyzer,
		Pipeline:   pipeline,
		Duplicates: duplicates,
		Logger:     logger,
		TTL:        time.Hour,
	})
	require.NoError(t, err)

	caseHandler, err := handlers.NewCaseHandler(handlers.CaseHandlerDeps{
		Ingest:    ingest,
		Catalog:   cat,
		Pipeline:  pipeline,
		Resolver:  tax.Resolver,
		Templates: tax.Templates,
		Logger:    logger,
	})
	require.NoError(t, err)

	router := httpserver.NewRouter(httpserver.RouterConfig{
		CaseHandler:    caseHandler,
		CatalogHandler: handlers.NewCatalogHandler(cat),
		SessionHandler: handlers.NewSessionHandler(sessions),
		HealthHandler: handlers.NewHealthHandler("e2e",
			[]handlers.HealthChecker{bootstrap.NewHealthCheck("cases", cases.Ping)},
			handlers.WithCaseCounter(cases),
			handlers.WithSessionCounter(sessions)),
		Logger: logger,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = sessions.Close(closeCtx)
		srv.Close()
	})

	return &testEnv{
		baseURL:    srv.URL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cases:      cases,
		sessions:   sessions,
	}
}

// loadTaxonomy reads the ontology and templates shipped in configs/.
func loadTaxonomy(t *testing.T) *bootstrap.Taxonomy {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	dir := filepath.Join(filepath.Dir(file), "..", "..", "configs")
	cfg := config.OntologyConfig{
		Source:              "file",
		Path:                filepath.Join(dir, "ontology.yaml"),
		TemplatesPath:       filepath.Join(dir, "templates"),
		DefaultCriminalNode: config.DefaultCriminalNode,
		DefaultFamilyNode:   config.DefaultFamilyNode,
	}
	tax, err := bootstrap.LoadTaxonomy(context.Background(), cfg, ontology.FileSource{Path: cfg.Path}, nil)
	require.NoError(t, err)
	return tax
}

//Personal.AI order the ending

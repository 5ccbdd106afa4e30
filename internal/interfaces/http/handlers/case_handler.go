package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/casemind/internal/application/catalog"
	"github.com/turtacn/casemind/internal/application/ingestion"
	"github.com/turtacn/casemind/internal/application/similarity"
	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/internal/domain/ontology"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/casemind/pkg/errors"
	"github.com/turtacn/casemind/pkg/types/legalcase"
)

const ingestSourceHTTP = "http"

// Search modes, used as metric labels.
const (
	searchModeStored = "stored"
	searchModeAdHoc  = "adhoc"
)

// CaseHandler serves ingestion, classification and similarity routes.
type CaseHandler struct {
	ingest    ingestion.Service
	catalog   catalog.Service
	pipeline  similarity.Pipeline
	resolver  *ontology.Resolver
	templates *ontology.TemplateStore
	metrics   *prometheus.AppMetrics
	logger    logging.Logger
}

// CaseHandlerDeps holds the handler collaborators.  Metrics is optional.
type CaseHandlerDeps struct {
	Ingest    ingestion.Service
	Catalog   catalog.Service
	Pipeline  similarity.Pipeline
	Resolver  *ontology.Resolver
	Templates *ontology.TemplateStore
	Metrics   *prometheus.AppMetrics
	Logger    logging.Logger
}

// NewCaseHandler creates a CaseHandler.
func NewCaseHandler(deps CaseHandlerDeps) (*CaseHandler, error) {
	if deps.Ingest == nil || deps.Catalog == nil || deps.Pipeline == nil {
		return nil, errors.InvalidParam("case handler requires ingestion, catalog and similarity services")
	}
	if deps.Resolver == nil || deps.Templates == nil {
		return nil, errors.InvalidParam("case handler requires a resolver and template store")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	return &CaseHandler{
		ingest:    deps.Ingest,
		catalog:   deps.Catalog,
		pipeline:  deps.Pipeline,
		resolver:  deps.Resolver,
		templates: deps.Templates,
		metrics:   deps.Metrics,
		logger:    deps.Logger.Named("case_handler"),
	}, nil
}

// RegisterRoutes mounts the handler under rg.
func (h *CaseHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/cases/ingest", h.Ingest)
	rg.POST("/cases/check-duplicate", h.CheckDuplicate)
	rg.GET("/cases/:id/similar", h.SimilarToCase)
	rg.POST("/classify", h.Classify)
	rg.POST("/similar", h.Similar)
}

// DuplicateCheckRequest is the JSON body of a duplicate check.
type DuplicateCheckRequest struct {
	Content []byte `json:"content"`
	Text    string `json:"text,omitempty"`
	KnownID string `json:"known_id,omitempty"`
}

// DuplicateCheckResponse reports the fingerprint and the gate's answer.
type DuplicateCheckResponse struct {
	Fingerprint string                   `json:"fingerprint"`
	Status      casefile.DuplicateStatus `json:"status"`
}

// ClassifyRequest carries the metadata and text to classify.
type ClassifyRequest struct {
	Metadata legalcase.CaseMetadata `json:"metadata"`
	Text     string                 `json:"text,omitempty"`
}

// SimilarRequest is an ad hoc similarity query.
type SimilarRequest struct {
	Query   similarity.QueryCase `json:"query"`
	Options similarity.Options   `json:"options"`
}

// Ingest handles POST /cases/ingest.  It accepts a JSON IngestRequest or a
// multipart form with a "file" part, optional "metadata" JSON and
// "known_id".  New cases answer 201, duplicates 200.
func (h *CaseHandler) Ingest(c *gin.Context) {
	start := time.Now()
	req, ok := h.ingestRequest(c)
	if !ok {
		return
	}

	res, err := h.ingest.Ingest(c.Request.Context(), req)
	outcome := "ingested"
	switch {
	case err != nil:
		outcome = "failed"
	case res.IsDuplicate:
		outcome = "duplicate"
	}
	if h.metrics != nil {
		prometheus.RecordIngest(h.metrics, ingestSourceHTTP, outcome, time.Since(start))
	}
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if res.IsDuplicate {
		status = http.StatusOK
	}
	respond(c, status, res)
}

func (h *CaseHandler) ingestRequest(c *gin.Context) (*ingestion.IngestRequest, bool) {
	if !isMultipart(c) {
		var req ingestion.IngestRequest
		if !bindJSON(c, &req) {
			return nil, false
		}
		return &req, true
	}

	name, data, err := readUpload(c)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	req := &ingestion.IngestRequest{
		SourceName: name,
		Content:    data,
		KnownID:    strings.TrimSpace(c.PostForm("known_id")),
	}
	if raw := c.PostForm("metadata"); raw != "" {
		var meta legalcase.CaseMetadata
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			respondError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "metadata must be a JSON object"))
			return nil, false
		}
		req.Metadata = &meta
	}
	return req, true
}

// CheckDuplicate handles POST /cases/check-duplicate with a JSON body or a
// multipart upload.
func (h *CaseHandler) CheckDuplicate(c *gin.Context) {
	var content []byte
	var knownID string
	if isMultipart(c) {
		_, data, err := readUpload(c)
		if err != nil {
			respondError(c, err)
			return
		}
		content, knownID = data, strings.TrimSpace(c.PostForm("known_id"))
	} else {
		var req DuplicateCheckRequest
		if !bindJSON(c, &req) {
			return
		}
		content, knownID = req.Content, req.KnownID
		if len(content) == 0 {
			content = []byte(req.Text)
		}
	}
	if len(content) == 0 {
		respondError(c, errors.InvalidParam("document content is empty"))
		return
	}

	fp, status := h.ingest.CheckDuplicate(c.Request.Context(), content, knownID)
	respond(c, http.StatusOK, DuplicateCheckResponse{Fingerprint: fp.String(), Status: status})
}

// Classify handles POST /classify.  A miss answers with the generic template
// and fallback set, never an error.
func (h *CaseHandler) Classify(c *gin.Context) {
	var req ClassifyRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Metadata.SectionsInvoked) == 0 && strings.TrimSpace(req.Text) == "" && req.Metadata.CaseType == "" {
		respondError(c, errors.InvalidParam("sections_invoked, case_type or text is required"))
		return
	}
	sel, err := h.resolver.Select(req.Metadata, req.Text, h.templates)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sel)
}

// SimilarToCase handles GET /cases/:id/similar.  The stored case is the
// query and is excluded from its own results.
func (h *CaseHandler) SimilarToCase(c *gin.Context) {
	opts, err := parseOptions(c)
	if err != nil {
		respondError(c, err)
		return
	}
	rec, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.resolve(c, searchModeStored, similarity.QueryFromRecord(rec), opts)
}

// Similar handles POST /similar for a case that is not stored.
func (h *CaseHandler) Similar(c *gin.Context) {
	var req SimilarRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := req.Options.Validate(); err != nil {
		respondError(c, err)
		return
	}
	h.resolve(c, searchModeAdHoc, req.Query, req.Options)
}

func (h *CaseHandler) resolve(c *gin.Context, mode string, q similarity.QueryCase, opts similarity.Options) {
	res, err := h.pipeline.Resolve(c.Request.Context(), q, opts)
	if h.metrics != nil {
		n := 0
		if res != nil {
			n = len(res.Results)
		}
		prometheus.RecordSimilarSearch(h.metrics, mode, n, err)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, res)
}

//Personal.AI order the ending

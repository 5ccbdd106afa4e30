package ingestion

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/internal/domain/ontology"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/internal/intelligence/common"
	"github.com/turtacn/casemind/internal/intelligence/encoder"
	apperrors "github.com/turtacn/casemind/pkg/errors"
	"github.com/turtacn/casemind/pkg/types/legalcase"
)

// Analysis stages reported through the progress callback.
const (
	StageExtracting      = "extracting"
	StageSummarizing     = "summarizing"
	StageExtractingFacts = "extracting_facts"
	StageEmbedding       = "embedding"
)

// ProgressFunc is told when an analysis stage begins.
type ProgressFunc func(stage string)

// AnalyzeInput is one document to analyse.  Text, when set, skips the text
// source.  Metadata, when set, skips metadata extraction.
type AnalyzeInput struct {
	SourceName string
	Raw        []byte
	Text       string
	Metadata   *legalcase.CaseMetadata
}

// Analysis is everything derived from a document before it is stored.
type Analysis struct {
	Text       string                   `json:"-"`
	Metadata   legalcase.CaseMetadata   `json:"metadata"`
	Selection  *ontology.Selection      `json:"selection"`
	Facts      legalcase.ExtractedFacts `json:"facts"`
	Embeddings casefile.EmbeddingPair   `json:"-"`
}

// Analyzer runs the read-only half of ingestion: text, metadata, template
// selection, facts and embeddings.  Search sessions reuse it for uploads
// that are never stored.
type Analyzer struct {
	source    TextSource
	extractor Extractor
	resolver  *ontology.Resolver
	templates *ontology.TemplateStore
	embedder  encoder.Embedder
	logger    logging.Logger
	metrics   common.EngineMetrics
}

// AnalyzerDeps holds the analyzer collaborators.  Source defaults to
// PlainTextSource and Extractor to RuleExtractor.
type AnalyzerDeps struct {
	Source    TextSource
	Extractor Extractor
	Resolver  *ontology.Resolver
	Templates *ontology.TemplateStore
	Embedder  encoder.Embedder
	Logger    logging.Logger
	Metrics   common.EngineMetrics
}

// NewAnalyzer wires an Analyzer.
func NewAnalyzer(deps AnalyzerDeps) (*Analyzer, error) {
	if deps.Resolver == nil || deps.Templates == nil {
		return nil, apperrors.InvalidParam("analyzer requires an ontology resolver and a template store")
	}
	if deps.Embedder == nil {
		return nil, apperrors.InvalidParam("analyzer requires an embedder")
	}
	if deps.Source == nil {
		deps.Source = PlainTextSource{}
	}
	if deps.Extractor == nil {
		deps.Extractor = RuleExtractor{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = common.NewNoopEngineMetrics()
	}
	return &Analyzer{
		source:    deps.Source,
		extractor: deps.Extractor,
		resolver:  deps.Resolver,
		templates: deps.Templates,
		embedder:  deps.Embedder,
		logger:    deps.Logger.Named("analyzer"),
		metrics:   deps.Metrics,
	}, nil
}

// Analyze runs every stage in order.  progress may be nil.
func (a *Analyzer) Analyze(ctx context.Context, in AnalyzeInput, progress ProgressFunc) (*Analysis, error) {
	report := func(stage string) {
		if progress != nil {
			progress(stage)
		}
	}
	log := a.logger.WithContext(ctx)

	report(StageExtracting)
	text := strings.TrimSpace(in.Text)
	if text == "" {
		t, err := a.source.Text(ctx, in.Raw, in.SourceName)
		if err != nil {
			return nil, wrapStage(err, apperrors.ErrCodeExtractionFailed, "read document text")
		}
		text = t
	}

	var meta legalcase.CaseMetadata
	if in.Metadata != nil {
		meta = *in.Metadata
	} else {
		m, err := a.extractor.ExtractMetadata(ctx, text, in.SourceName)
		if err != nil {
			return nil, wrapStage(err, apperrors.ErrCodeExtractionFailed, "extract case metadata")
		}
		meta = m
	}
	sections := make([]string, 0, len(meta.SectionsInvoked))
	for _, s := range meta.SectionsInvoked {
		sections = append(sections, ontology.NormalizeSection(s))
	}
	meta.SectionsInvoked = sections

	report(StageSummarizing)
	summary, err := a.extractor.Summarize(ctx, text)
	if err != nil {
		return nil, wrapStage(err, apperrors.ErrCodeExtractionFailed, "summarize case")
	}

	report(StageExtractingFacts)
	sel, err := a.resolver.Select(meta, text, a.templates)
	if err != nil {
		return nil, wrapStage(err, apperrors.ErrCodeExtractionFailed, "select template")
	}
	strategy := string(ontology.StrategyNone)
	if sel.Match != nil {
		strategy = string(sel.Match.Strategy)
	}
	a.metrics.RecordClassification(ctx, strategy, sel.Confidence)

	facts, err := a.extractor.ExtractFacts(ctx, text, sel.Template)
	if err != nil {
		return nil, wrapStage(err, apperrors.ErrCodeExtractionFailed, "extract case facts")
	}
	facts.TemplateID = sel.Template.ID
	if strings.TrimSpace(facts.Summary) == "" {
		facts.Summary = summary
	}

	report(StageEmbedding)
	vectors, err := a.embed(ctx, facts.Summary, meta.QueryText())
	if err != nil {
		return nil, err
	}

	log.Debug("case analysed",
		logging.String("source", in.SourceName),
		logging.String("template_id", sel.Template.ID),
		logging.String("strategy", strategy),
		logging.Bool("fallback", sel.Fallback),
		logging.Int("facts", facts.FieldCount()))

	return &Analysis{
		Text:       text,
		Metadata:   meta,
		Selection:  sel,
		Facts:      facts,
		Embeddings: vectors,
	}, nil
}

// embed computes the facts and metadata vectors concurrently.  Empty texts
// get no vector.
func (a *Analyzer) embed(ctx context.Context, factsText, metaText string) (casefile.EmbeddingPair, error) {
	start := time.Now()
	var pair casefile.EmbeddingPair
	g, gctx := errgroup.WithContext(ctx)
	if strings.TrimSpace(factsText) != "" {
		g.Go(func() error {
			v, err := a.embedder.Embed(gctx, factsText)
			pair.Facts = v
			return err
		})
	}
	if strings.TrimSpace(metaText) != "" {
		g.Go(func() error {
			v, err := a.embedder.Embed(gctx, metaText)
			pair.Metadata = v
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return casefile.EmbeddingPair{}, apperrors.Wrap(err, apperrors.ErrCodeEmbeddingFailed, "embed case")
	}
	a.metrics.RecordPipelinePhase(ctx, "ingest_embed", float64(time.Since(start).Microseconds())/1000.0)
	return pair, nil
}

// wrapStage keeps an existing AppError code and wraps anything else.
func wrapStage(err error, code apperrors.ErrorCode, msg string) error {
	if existing := apperrors.GetCode(err); existing != apperrors.CodeUnknown && existing != apperrors.CodeOK {
		return err
	}
	return apperrors.Wrap(err, code, msg)
}

//Personal.AI order the ending

package bootstrap

import (
	"context"

	"github.com/turtacn/casemind/internal/config"
	"github.com/turtacn/casemind/internal/domain/ontology"
	"github.com/turtacn/casemind/internal/infrastructure/database/neo4j"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/pkg/errors"
)

// Taxonomy is the loaded ontology, its template store and a resolver over
// both.
type Taxonomy struct {
	Ontology  *ontology.Ontology
	Templates *ontology.TemplateStore
	Resolver  *ontology.Resolver
}

// OntologySource picks the taxonomy source named by cfg.Source.  graph is
// required for the neo4j source.
func OntologySource(cfg config.OntologyConfig, graph neo4j.Executor, logger logging.Logger) (ontology.Source, error) {
	switch cfg.Source {
	case "", "file":
		if cfg.Path == "" {
			return nil, errors.New(errors.ErrCodeOntologyInvalid, "ontology path is not configured")
		}
		return ontology.FileSource{Path: cfg.Path}, nil
	case "neo4j":
		if graph == nil {
			return nil, errors.New(errors.ErrCodeOntologyInvalid, "neo4j ontology source requires a graph connection")
		}
		return neo4j.NewOntologySource(graph, logger), nil
	default:
		return nil, errors.New(errors.ErrCodeOntologyInvalid, "unknown ontology source").WithDetail(cfg.Source)
	}
}

// LoadTemplates reads the template directory.  An empty path yields no
// templates, leaving only the generic one.
func LoadTemplates(cfg config.OntologyConfig) ([]*ontology.Template, error) {
	if cfg.TemplatesPath == "" {
		return nil, nil
	}
	return ontology.LoadTemplatesDir(cfg.TemplatesPath)
}

// LoadTaxonomy loads the ontology from src and the templates from
// cfg.TemplatesPath, then builds the resolver.  Any invalid template fails
// the load.
func LoadTaxonomy(ctx context.Context, cfg config.OntologyConfig, src ontology.Source, logger logging.Logger) (*Taxonomy, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	ont, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	templates, err := LoadTemplates(cfg)
	if err != nil {
		return nil, err
	}
	store, err := ontology.NewTemplateStore(templates)
	if err != nil {
		return nil, err
	}

	logger.Info("taxonomy loaded",
		logging.Int("nodes", len(ont.IDs())),
		logging.Int("templates", len(store.IDs())))
	return &Taxonomy{
		Ontology:  ont,
		Templates: store,
		Resolver: ontology.NewResolver(ont,
			ontology.WithLogger(logger),
			ontology.WithDefaultNodes(cfg.DefaultCriminalNode, cfg.DefaultFamilyNode),
			ontology.WithMergeFloor(cfg.MergeFloor)),
	}, nil
}

//Personal.AI order the ending

package cli

import (
	"context"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/casemind/internal/bootstrap"
	"github.com/turtacn/casemind/internal/config"
	"github.com/turtacn/casemind/internal/domain/ontology"
	"github.com/turtacn/casemind/internal/infrastructure/database/neo4j"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/pkg/errors"
)

// TemplateCheck is the validation outcome of one template.
type TemplateCheck struct {
	ID     string   `json:"template_id"`
	Label  string   `json:"label"`
	Node   bool     `json:"node_found"`
	Issues []string `json:"issues,omitempty"`
}

// OntologyReport summarises an ontology and its templates.
type OntologyReport struct {
	Source    string          `json:"source"`
	Nodes     int             `json:"nodes"`
	Roots     []string        `json:"roots"`
	Leaves    int             `json:"leaves"`
	Templates []TemplateCheck `json:"templates"`
	Seeded    bool            `json:"seeded"`
}

func (r *OntologyReport) TableHeaders() []string {
	return []string{"Template", "Label", "Node", "Status"}
}

func (r *OntologyReport) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Templates))
	for _, t := range r.Templates {
		node := "yes"
		if !t.Node {
			node = color.YellowString("missing")
		}
		status := color.GreenString("ok")
		if len(t.Issues) > 0 {
			status = color.RedString(strings.Join(t.Issues, "; "))
		}
		rows = append(rows, []string{t.ID, t.Label, node, status})
	}
	return rows
}

func (r *OntologyReport) invalid() int {
	n := 0
	for _, t := range r.Templates {
		if len(t.Issues) > 0 {
			n++
		}
	}
	return n
}

type ontologySeeder interface {
	Seed(ctx context.Context, ont *ontology.Ontology) error
}

// openSeeder connects the ontology graph.  A variable so tests can
// substitute it.
var openSeeder = func(ctx context.Context, cfg *config.Config, logger logging.Logger) (ontologySeeder, func(), error) {
	d, err := neo4j.NewDriver(neo4j.ConfigFrom(cfg.Neo4j), logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "neo4j")
	}
	return neo4j.NewOntologySource(d, logger), func() { _ = d.Close() }, nil
}

func newValidateOntologyCmd() *cobra.Command {
	var (
		ontologyPath  string
		templatesPath string
		seed          bool
	)
	cmd := &cobra.Command{
		Use:   "validate-ontology",
		Short: "Validate the ontology and its fact templates",
		Long: "Load the ontology and every template, then report templates that are\n" +
			"malformed or that name no ontology node.  With --seed-graph a valid\n" +
			"file ontology is written to the neo4j graph.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ontCfg := cc.Config.Ontology
			if ontologyPath != "" {
				ontCfg.Source, ontCfg.Path = "file", ontologyPath
			}
			if templatesPath != "" {
				ontCfg.TemplatesPath = templatesPath
			}
			if seed && ontCfg.Source == "neo4j" {
				return errors.InvalidParam("--seed-graph needs a file ontology; pass --ontology")
			}

			ctx, cancel := commandContext(cmd, cc)
			defer cancel()

			ont, err := loadOntology(ctx, cc, ontCfg)
			if err != nil {
				return err
			}
			templates, err := bootstrap.LoadTemplates(ontCfg)
			if err != nil {
				return err
			}
			report := checkTemplates(ont, templates)
			report.Source = ontCfg.Source

			if report.invalid() == 0 && seed {
				seeder, closeFn, err := openSeeder(ctx, cc.Config, cc.Logger)
				if err != nil {
					return err
				}
				defer closeFn()
				if err := seeder.Seed(ctx, ont); err != nil {
					return err
				}
				report.Seeded = true
			}

			if err := PrintResult(cmd, report); err != nil {
				return err
			}
			if n := report.invalid(); n > 0 {
				return errors.Newf(errors.ErrCodeTemplateInvalid, "%d invalid templates", n)
			}
			if report.Seeded && cc.OutputFormat != OutputJSON {
				PrintSuccess(cmd, "ontology seeded into the graph")
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&ontologyPath, "ontology", "", "ontology file (overrides config)")
	f.StringVar(&templatesPath, "templates", "", "templates directory (overrides config)")
	f.BoolVar(&seed, "seed-graph", false, "write the ontology to neo4j when it is valid")
	return cmd
}

func loadOntology(ctx context.Context, cc *CLIContext, ontCfg config.OntologyConfig) (*ontology.Ontology, error) {
	if ontCfg.Source != "neo4j" {
		src, err := bootstrap.OntologySource(ontCfg, nil, cc.Logger)
		if err != nil {
			return nil, err
		}
		return src.Load(ctx)
	}
	cfg := *cc.Config
	cfg.Ontology = ontCfg
	tax, cleanup, err := openTaxonomy(ctx, &cfg, cc.Logger)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return tax.Ontology, nil
}

// checkTemplates validates every template and flags the ones whose id is
// not an ontology node.  The generic template needs no node.
func checkTemplates(ont *ontology.Ontology, templates []*ontology.Template) *OntologyReport {
	issues := ontology.ValidateTemplates(templates)
	report := &OntologyReport{
		Nodes:     ont.Len(),
		Roots:     ont.Roots(),
		Leaves:    len(ont.Leaves()),
		Templates: make([]TemplateCheck, 0, len(templates)),
	}
	for _, t := range templates {
		if t == nil {
			continue
		}
		check := TemplateCheck{ID: t.ID, Label: t.Label, Node: ont.Has(t.ID), Issues: issues[t.ID]}
		if !check.Node && t.ID != ontology.GenericTemplateID {
			check.Issues = append(check.Issues, "no ontology node "+t.ID)
		}
		if t.ID == ontology.GenericTemplateID {
			check.Node = true
		}
		report.Templates = append(report.Templates, check)
	}
	sort.Slice(report.Templates, func(i, j int) bool { return report.Templates[i].ID < report.Templates[j].ID })
	return report
}

//Personal.AI order the ending

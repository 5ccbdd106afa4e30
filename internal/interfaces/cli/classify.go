package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/casemind/internal/bootstrap"
	"github.com/turtacn/casemind/internal/domain/ontology"
	"github.com/turtacn/casemind/pkg/errors"
	"github.com/turtacn/casemind/pkg/types/legalcase"
)

type classifyOptions struct {
	sections []string
	caseType string
	court    string
	title    string
	file     string
	text     string
}

// ClassifyView is the classification and template choice for one case.
type ClassifyView struct {
	TemplateID string                 `json:"template_id"`
	Template   string                 `json:"template_label"`
	Confidence float64                `json:"confidence"`
	Fallback   bool                   `json:"fallback"`
	Merged     bool                   `json:"merged"`
	Matches    []ontology.MatchResult `json:"matches"`
}

func (v *ClassifyView) TableHeaders() []string {
	return []string{"Node", "Label", "Confidence", "Strategy", "Sections", "Path"}
}

func (v *ClassifyView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Matches)+1)
	for _, m := range v.Matches {
		rows = append(rows, []string{
			m.NodeID,
			m.Label,
			formatScore(m.Confidence),
			string(m.Strategy),
			joinOrDash(m.MatchedSections),
			strings.Join(m.AncestorPath, " > "),
		})
	}
	template := v.TemplateID
	if v.Fallback {
		template += " (fallback)"
	}
	if v.Merged {
		template += " (merged)"
	}
	return append(rows, []string{"=> template", template, formatScore(v.Confidence), "", "", ""})
}

func newClassifyCmd() *cobra.Command {
	opts := &classifyOptions{}
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a case against the ontology and pick its template",
		Long: "Classify a case from its invoked sections and, optionally, its text.\n" +
			"Prints every candidate node with its confidence and the template that\n" +
			"fact extraction would use.",
		Example: `  casemind classify --section "Section 302 IPC" --case-type criminal
  casemind classify --file judgment.txt -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			meta, text, err := opts.input()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cc)
			defer cancel()

			tax, cleanup, err := openTaxonomy(ctx, cc.Config, cc.Logger)
			if err != nil {
				return err
			}
			defer cleanup()

			view, err := runClassify(tax, meta, text)
			if err != nil {
				return err
			}
			return PrintResult(cmd, view)
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&opts.sections, "section", nil, "statutory section invoked (repeatable)")
	f.StringVar(&opts.caseType, "case-type", "", "case type, e.g. criminal or family")
	f.StringVar(&opts.court, "court", "", "court name")
	f.StringVar(&opts.title, "title", "", "case title")
	f.StringVar(&opts.file, "file", "", "read case text from a file")
	f.StringVar(&opts.text, "text", "", "case text")
	return cmd
}

func (o *classifyOptions) input() (legalcase.CaseMetadata, string, error) {
	meta := legalcase.CaseMetadata{
		SectionsInvoked: o.sections,
		CaseType:        o.caseType,
		Court:           o.court,
		Title:           o.title,
	}
	text := o.text
	if o.file != "" {
		data, err := os.ReadFile(o.file)
		if err != nil {
			return meta, "", errors.InvalidParam("cannot read case file").WithDetail(err.Error())
		}
		text = string(data)
	}
	if len(meta.SectionsInvoked) == 0 && strings.TrimSpace(text) == "" && meta.CaseType == "" {
		return meta, "", errors.InvalidParam("provide --section, --case-type, --file or --text")
	}
	return meta, text, nil
}

func runClassify(tax *bootstrap.Taxonomy, meta legalcase.CaseMetadata, text string) (*ClassifyView, error) {
	sel, err := tax.Resolver.Select(meta, text, tax.Templates)
	if err != nil {
		return nil, err
	}
	return &ClassifyView{
		TemplateID: sel.Template.ID,
		Template:   sel.Template.Label,
		Confidence: sel.Confidence,
		Fallback:   sel.Fallback,
		Merged:     sel.Merged,
		Matches:    sel.Matches,
	}, nil
}

//Personal.AI order the ending

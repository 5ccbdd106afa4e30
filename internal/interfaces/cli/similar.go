package cli

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/casemind/internal/application/ingestion"
	"github.com/turtacn/casemind/internal/application/similarity"
	"github.com/turtacn/casemind/internal/bootstrap"
	"github.com/turtacn/casemind/pkg/errors"
)

type similarOptions struct {
	caseID      string
	file        string
	topK        int
	threshold   float64
	useMetadata bool
}

// SimilarView renders a ranked result.
type SimilarView struct {
	*similarity.RankedResult
}

func (v SimilarView) TableHeaders() []string {
	return []string{"#", "Case", "Title", "Court", "Date", "Cosine", "Rerank"}
}

func (v SimilarView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Results))
	for i, r := range v.Results {
		date := r.Date
		if date == "" {
			date = "-"
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			r.DocumentID,
			r.Title,
			r.Court,
			date,
			formatScore(r.CosineScore),
			formatScore(r.RerankScore),
		})
	}
	return rows
}

func newSimilarCmd() *cobra.Command {
	opts := &similarOptions{}
	cmd := &cobra.Command{
		Use:   "similar",
		Short: "Find cases similar to a stored case or a document",
		Long: "Retrieve candidates by vector similarity and rerank them with the\n" +
			"cross-encoder.  The query case is never returned as its own neighbour.",
		Example: `  casemind similar --case-id 7f3c... --top-k 5
  casemind similar --file judgment.txt --use-metadata --threshold 0.4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if (opts.caseID == "") == (opts.file == "") {
				return errors.InvalidParam("exactly one of --case-id or --file is required")
			}
			if !cmd.Flags().Changed("threshold") {
				opts.threshold = cc.Config.Similarity.Threshold
			}
			simOpts := similarity.Options{
				UseMetadataQuery: opts.useMetadata,
				TopK:             opts.topK,
				Threshold:        opts.threshold,
			}
			if err := simOpts.Validate(); err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cc)
			defer cancel()
			svc, closeFn, err := openServices(ctx, cc.Config, cc.Logger)
			if err != nil {
				return err
			}
			defer closeFn()

			q, err := opts.query(cmd, svc)
			if err != nil {
				return err
			}
			res, err := svc.Pipeline.Resolve(ctx, q, simOpts)
			if err != nil {
				return err
			}
			return PrintResult(cmd, SimilarView{res})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.caseID, "case-id", "", "stored case to query from")
	f.StringVar(&opts.file, "file", "", "document to query from; it is analysed but not stored")
	f.IntVar(&opts.topK, "top-k", 0, "number of results (default from config)")
	f.Float64Var(&opts.threshold, "threshold", 0, "minimum rerank score in [0, 1] (default from config)")
	f.BoolVar(&opts.useMetadata, "use-metadata", false, "query with sections, court and title instead of facts")
	return cmd
}

func (o *similarOptions) query(cmd *cobra.Command, svc *bootstrap.Services) (similarity.QueryCase, error) {
	ctx := cmd.Context()
	if o.caseID != "" {
		rec, err := svc.Catalog.Get(ctx, o.caseID)
		if err != nil {
			return similarity.QueryCase{}, err
		}
		return similarity.QueryFromRecord(rec), nil
	}

	raw, err := os.ReadFile(o.file)
	if err != nil {
		return similarity.QueryCase{}, errors.InvalidParam("cannot read document").WithDetail(err.Error())
	}
	analysis, err := svc.Analyzer.Analyze(ctx, ingestion.AnalyzeInput{
		SourceName: filepath.Base(o.file),
		Raw:        raw,
	}, nil)
	if err != nil {
		return similarity.QueryCase{}, err
	}
	return similarity.QueryCase{
		Metadata:     analysis.Metadata,
		FactsSummary: analysis.Facts.Summary,
		Vectors:      analysis.Embeddings,
	}, nil
}

//Personal.AI order the ending

package cli

import (
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/pkg/errors"
)

// DuplicateView is the duplicate gate's answer for one file.
type DuplicateView struct {
	File        string                   `json:"file"`
	Fingerprint string                   `json:"fingerprint"`
	Status      casefile.DuplicateStatus `json:"status"`
}

func (v *DuplicateView) TableHeaders() []string {
	return []string{"File", "Fingerprint", "Duplicate", "Existing", "Method", "Confidence"}
}

func (v *DuplicateView) TableRows() [][]string {
	dup := color.GreenString("no")
	if v.Status.IsDuplicate {
		dup = color.YellowString("yes")
	}
	if v.Status.Degraded {
		dup += " (degraded)"
	}
	existing := v.Status.ExistingID
	if existing == "" {
		existing = "-"
	}
	return [][]string{{
		v.File,
		casefile.Fingerprint(v.Fingerprint).Short(),
		dup,
		existing,
		string(v.Status.Method),
		strconv.FormatFloat(v.Status.Confidence, 'f', 2, 64),
	}}
}

func newCheckDuplicateCmd() *cobra.Command {
	var knownID string
	cmd := &cobra.Command{
		Use:   "check-duplicate <file>",
		Short: "Check whether a document is already stored",
		Long: "Check a document against the corpus by its SHA-256 fingerprint and,\n" +
			"when --known-id is given, by that identifier.  Nothing is stored.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return errors.InvalidParam("cannot read document").WithDetail(err.Error())
			}
			ctx, cancel := commandContext(cmd, cc)
			defer cancel()

			svc, closeFn, err := openServices(ctx, cc.Config, cc.Logger)
			if err != nil {
				return err
			}
			defer closeFn()

			fp, status := svc.Ingestion.CheckDuplicate(ctx, content, knownID)
			return PrintResult(cmd, &DuplicateView{File: args[0], Fingerprint: fp.String(), Status: status})
		},
	}
	cmd.Flags().StringVar(&knownID, "known-id", "", "identifier the document is already known by")
	return cmd
}

//Personal.AI order the ending

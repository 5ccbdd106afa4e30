package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/casemind/pkg/errors"
)

// configsDir is the repository's shipped configs directory.
func configsDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.Abs(filepath.Join("..", "..", "..", "configs"))
	require.NoError(t, err)
	return dir
}

// writeConfig writes a minimal config using the shipped ontology plus any
// extra YAML sections and returns its path.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := configsDir(t)
	body := fmt.Sprintf(`server:
  mode: test
database:
  host: localhost
  db_name: casemind_test
ontology:
  source: file
  path: %s
  templates_path: %s
%s`, filepath.Join(dir, "ontology.yaml"), filepath.Join(dir, "templates"), extra)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// runCLI executes the root command with a fresh config and returns stdout and
// stderr.
func runCLI(t *testing.T, cfgPath string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	full := append([]string{"--no-color", "--log-level", "error"}, args...)
	if cfgPath != "" {
		full = append([]string{"--config", cfgPath}, full...)
	}
	cmd.SetArgs(full)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestNewRootCommand_Structure(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "casemind", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
	assert.True(t, cmd.SilenceUsage)
	assert.True(t, cmd.SilenceErrors)
}

func TestNewRootCommand_SubcommandRegistration(t *testing.T) {
	cmd := NewRootCommand()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"version", "classify", "check-duplicate", "similar", "ingest", "validate-ontology", "migrate"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestNewRootCommand_GlobalFlags(t *testing.T) {
	pf := NewRootCommand().PersistentFlags()
	for _, name := range []string{"config", "log-level", "output", "no-color", "timeout"} {
		assert.NotNil(t, pf.Lookup(name), "missing flag %q", name)
	}
	assert.Equal(t, "c", pf.Lookup("config").Shorthand)
	assert.Equal(t, "o", pf.Lookup("output").Shorthand)
	assert.Equal(t, OutputTable, pf.Lookup("output").DefValue)
	assert.Equal(t, "warn", pf.Lookup("log-level").DefValue)
}

func TestVersionCommand(t *testing.T) {
	old := Version
	Version = "1.2.3"
	defer func() { Version = old }()

	// No config file is needed.
	out, _, err := runCLI(t, filepath.Join(t.TempDir(), "missing.yaml"), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "casemind 1.2.3")
	assert.Contains(t, out, "commit:")
}

func TestRoot_HelpAndUnknownSubcommand(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--help"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "classify")

	cmd = NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"no-such-command"})
	assert.Error(t, cmd.Execute())
}

func TestRoot_InvalidOutputFormat(t *testing.T) {
	_, _, err := runCLI(t, writeConfig(t, ""), "-o", "yaml", "classify", "--section", "302 IPC")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestRoot_MissingConfigFile(t *testing.T) {
	_, _, err := runCLI(t, filepath.Join(t.TempDir(), "missing.yaml"), "classify", "--section", "302 IPC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config initialization failed")
}

func TestGetCLIContext_NotInitialised(t *testing.T) {
	cmd := &cobra.Command{}
	_, err := GetCLIContext(cmd)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInternal))

	cmd.SetContext(context.Background())
	_, err = GetCLIContext(cmd)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInternal))
}

type sampleTable struct{}

func (sampleTable) TableHeaders() []string { return []string{"Name", "Score"} }
func (sampleTable) TableRows() [][]string  { return [][]string{{"alpha", "0.900"}, {"beta", "0.500"}} }

func TestWriteResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, OutputTable, sampleTable{}))
	out := buf.String()
	assert.Contains(t, out, "Name")
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "0.500")

	buf.Reset()
	require.NoError(t, writeResult(&buf, OutputJSON, map[string]int{"n": 1}))
	assert.JSONEq(t, `{"n":1}`, buf.String())

	// Values without a table form fall back to JSON.
	buf.Reset()
	require.NoError(t, writeResult(&buf, OutputTable, []string{"x"}))
	assert.JSONEq(t, `["x"]`, buf.String())
}

func TestPrintError_IncludesCode(t *testing.T) {
	color.NoColor = true
	cmd := &cobra.Command{}
	var errOut bytes.Buffer
	cmd.SetErr(&errOut)

	PrintError(cmd, errors.NotFound("case missing"))
	assert.True(t, strings.HasPrefix(errOut.String(), "Error: [COMMON_005]"))
	assert.Contains(t, errOut.String(), "case missing")

	errOut.Reset()
	PrintError(cmd, nil)
	assert.Empty(t, errOut.String())
}

//Personal.AI order the ending

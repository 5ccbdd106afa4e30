package ontology

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/casemind/pkg/errors"
)

func TestLoadOntologyFile_YAML(t *testing.T) {
	ont, err := LoadOntologyFile(filepath.Join("testdata", "ontology.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7, ont.Len())
	assert.ElementsMatch(t, []string{"criminal_case", "family_law_dispute"}, ont.Roots())
	assert.Equal(t, []string{"Criminal Case", "Sexual Offences", "Rape"}, ont.AncestorPath("ipc_376"))
	assert.Equal(t, []string{"ipc_376"}, ont.nodesForSection("POCSO 4"))
}

func TestLoadOntologyFile_JSON(t *testing.T) {
	ont, err := FileSource{Path: filepath.Join("testdata", "ontology.json")}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ont.Len())
	assert.True(t, ont.IsLeaf("ipc_302"))
}

func TestLoadOntologyFile_Errors(t *testing.T) {
	_, err := LoadOntologyFile("ontology.txt")
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))

	_, err = LoadOntologyFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeOntologyInvalid))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("ontology_schema:\n  - label: Nameless\n"), 0o644))
	_, err = LoadOntologyFile(bad)
	assert.True(t, errors.IsCode(err, errors.ErrCodeOntologyInvalid))

	broken := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{not json"), 0o644))
	_, err = LoadOntologyFile(broken)
	assert.True(t, errors.IsCode(err, errors.ErrCodeOntologyInvalid))
}

func TestLoadTemplatesDir(t *testing.T) {
	templates, err := LoadTemplatesDir(filepath.Join("testdata", "templates"))
	require.NoError(t, err)
	require.Len(t, templates, 3)

	assert.Equal(t, "ipc_395", templates[0].ID)
	assert.Equal(t, "ipc_397", templates[1].ID)
	assert.Equal(t, "sexual_offense", templates[2].ID)

	dacoity := templates[0]
	assert.Equal(t, 0.9, dacoity.BaseConfidence)
	assert.Equal(t, []string{"number_of_accused", "property_taken", "weapon_used"}, dacoity.RequiredFields())
	assert.Equal(t, []string{"unclassified_facts"}, dacoity.ResidualFields)

	// confidence defaults to 1.0 when absent
	assert.Equal(t, 1.0, templates[2].BaseConfidence)

	for _, tpl := range templates {
		assert.NoError(t, tpl.Validate(), tpl.ID)
	}
}

func TestParseTemplate_DefaultsIDToFileStem(t *testing.T) {
	tpl, err := ParseTemplate([]byte(`{"label": "Theft", "fact_tiers": {"tier_1_determinative": {"fields": ["item"]}}}`), FormatJSON, "theft")
	require.NoError(t, err)
	assert.Equal(t, "theft", tpl.ID)
	// the missing definition is reported, not swallowed
	assert.Len(t, tpl.Issues(), 1)
}

func TestLoadTemplatesDir_Missing(t *testing.T) {
	_, err := LoadTemplatesDir(filepath.Join(t.TempDir(), "none"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeTemplateInvalid))
}

//Personal.AI order the ending

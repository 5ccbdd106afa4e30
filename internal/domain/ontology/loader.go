package ontology

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/turtacn/casemind/pkg/errors"
)

// Format is a serialisation format for ontology and template documents.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", errors.InvalidParam("unsupported ontology file extension").WithDetail(path)
}

func decode(data []byte, format Format, v interface{}) error {
	switch format {
	case FormatJSON:
		return json.Unmarshal(data, v)
	case FormatYAML:
		return yaml.Unmarshal(data, v)
	}
	return fmt.Errorf("unknown format %q", format)
}

// ─────────────────────────────────────────────────────────────────────────────
// Ontology documents
// ─────────────────────────────────────────────────────────────────────────────

type nodeDocument struct {
	NodeID       string   `json:"node_id" yaml:"node_id"`
	Label        string   `json:"label" yaml:"label"`
	Parent       string   `json:"parent" yaml:"parent"`
	Children     []string `json:"children" yaml:"children"`
	Sections     []string `json:"sections" yaml:"sections"`
	ExampleTerms []string `json:"example_terms" yaml:"example_terms"`
}

type ontologyDocument struct {
	Nodes []nodeDocument `json:"ontology_schema" yaml:"ontology_schema"`
}

// ParseOntology decodes an ontology document:
//
//	ontology_schema:
//	  - node_id: robbery
//	    label: Robbery
//	    parent: property_offense
//	    sections: ["IPC 392"]
//	    example_terms: ["snatched", "looted"]
func ParseOntology(data []byte, format Format) (*Ontology, error) {
	var doc ontologyDocument
	if err := decode(data, format, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeOntologyInvalid, "failed to parse ontology document")
	}
	nodes := make([]Node, len(doc.Nodes))
	for i, d := range doc.Nodes {
		nodes[i] = Node{
			ID:           d.NodeID,
			Label:        d.Label,
			ParentID:     strings.TrimSpace(d.Parent),
			SectionCodes: d.Sections,
			ExampleTerms: d.ExampleTerms,
			ChildIDs:     d.Children,
		}
	}
	return New(nodes)
}

// LoadOntologyFile reads and parses an ontology file; the format follows the
// file extension.
func LoadOntologyFile(path string) (*Ontology, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeOntologyInvalid, "failed to read ontology file").WithDetail(path)
	}
	return ParseOntology(data, format)
}

// FileSource loads the ontology from a local file.
type FileSource struct {
	Path string
}

// Load implements Source.
func (s FileSource) Load(_ context.Context) (*Ontology, error) {
	return LoadOntologyFile(s.Path)
}

// ─────────────────────────────────────────────────────────────────────────────
// Template documents
// ─────────────────────────────────────────────────────────────────────────────

type tierDocument struct {
	Fields []string `json:"fields" yaml:"fields"`
}

type templateDocument struct {
	NodeID           string                     `json:"node_id" yaml:"node_id"`
	Label            string                     `json:"label" yaml:"label"`
	Parent           string                     `json:"parent" yaml:"parent"`
	Sections         []string                   `json:"sections" yaml:"sections"`
	FactTiers        map[string]tierDocument    `json:"fact_tiers" yaml:"fact_tiers"`
	FieldDefinitions map[string]FieldDefinition `json:"field_definitions" yaml:"field_definitions"`
	ExampleTerms     []string                   `json:"example_terms" yaml:"example_terms"`
	ResidualDetails  map[string][]string        `json:"residual_details" yaml:"residual_details"`
	Confidence       *float64                   `json:"suggested_section_mapping_confidence" yaml:"suggested_section_mapping_confidence"`
}

// ParseTemplate decodes a template document.  The template is returned even
// when it is structurally invalid so callers can report every issue; use
// Validate or NewTemplateStore to reject it.
func ParseTemplate(data []byte, format Format, defaultID string) (*Template, error) {
	var doc templateDocument
	if err := decode(data, format, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTemplateInvalid, "failed to parse template document").WithDetail(defaultID)
	}
	t := &Template{
		ID:               strings.TrimSpace(doc.NodeID),
		Label:            doc.Label,
		ParentID:         doc.Parent,
		SectionCodes:     doc.Sections,
		FactTiers:        make(map[Tier][]string, len(doc.FactTiers)),
		FieldDefinitions: doc.FieldDefinitions,
		ExampleTerms:     doc.ExampleTerms,
		BaseConfidence:   1.0,
	}
	if t.ID == "" {
		t.ID = defaultID
	}
	if t.FieldDefinitions == nil {
		t.FieldDefinitions = map[string]FieldDefinition{}
	}
	for name, tier := range doc.FactTiers {
		t.FactTiers[Tier(name)] = tier.Fields
	}
	keys := make([]string, 0, len(doc.ResidualDetails))
	for k := range doc.ResidualDetails {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.ResidualFields = append(t.ResidualFields, k)
		t.ResidualFields = append(t.ResidualFields, doc.ResidualDetails[k]...)
	}
	if doc.Confidence != nil {
		t.BaseConfidence = *doc.Confidence
	}
	return t, nil
}

// isIndexFile reports whether name is a template directory index rather
// than a template.
func isIndexFile(name string) bool {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return stem == "templates"
}

// LoadTemplatesDir parses every *.json, *.yaml and *.yml file in dir.
// Templates are returned unvalidated and sorted by id.
func LoadTemplatesDir(dir string) ([]*Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTemplateInvalid, "failed to read templates directory").WithDetail(dir)
	}
	var out []*Template
	for _, e := range entries {
		if e.IsDir() || isIndexFile(e.Name()) {
			continue
		}
		format, err := FormatFromPath(e.Name())
		if err != nil {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeTemplateInvalid, "failed to read template").WithDetail(path)
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		t, err := ParseTemplate(data, format, stem)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

//Personal.AI order the ending

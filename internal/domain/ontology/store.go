package ontology

import (
	"context"
	"sort"

	"github.com/turtacn/casemind/pkg/errors"
)

// Source loads an ontology from a backing system (file, graph database).
type Source interface {
	Load(ctx context.Context) (*Ontology, error)
}

// TemplateStore is an immutable, validated set of templates keyed by id.
type TemplateStore struct {
	templates map[string]*Template
	generic   *Template
}

// NewTemplateStore validates and indexes templates.  The first invalid or
// duplicate template aborts construction.  When no template carries
// GenericTemplateID the built-in GenericTemplate is used as the fallback.
func NewTemplateStore(templates []*Template) (*TemplateStore, error) {
	s := &TemplateStore{templates: make(map[string]*Template, len(templates))}
	for _, t := range templates {
		if t == nil {
			continue
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.templates[t.ID]; dup {
			return nil, errors.New(errors.ErrCodeTemplateInvalid, "duplicate template").WithDetail(t.ID)
		}
		s.templates[t.ID] = t.Clone()
	}
	if g, ok := s.templates[GenericTemplateID]; ok {
		s.generic = g
	} else {
		s.generic = GenericTemplate()
	}
	return s, nil
}

// ValidateTemplates reports the issues of every invalid template, keyed by
// template id.  Valid templates are omitted.
func ValidateTemplates(templates []*Template) map[string][]string {
	out := make(map[string][]string)
	for _, t := range templates {
		if t == nil {
			continue
		}
		if issues := t.Issues(); len(issues) > 0 {
			out[t.ID] = issues
		}
	}
	return out
}

// Get returns a copy of the template with the given id.
func (s *TemplateStore) Get(id string) (*Template, error) {
	t, ok := s.templates[id]
	if !ok {
		if id == GenericTemplateID {
			return s.generic.Clone(), nil
		}
		return nil, errors.New(errors.ErrCodeTemplateNotFound, "template not found").WithDetail(id)
	}
	return t.Clone(), nil
}

// Has reports whether a template exists for id.
func (s *TemplateStore) Has(id string) bool {
	_, ok := s.templates[id]
	return ok
}

// Generic returns a copy of the catch-all template.
func (s *TemplateStore) Generic() *Template {
	return s.generic.Clone()
}

// IDs returns the stored template ids in ascending order.
func (s *TemplateStore) IDs() []string {
	ids := make([]string, 0, len(s.templates))
	for id := range s.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of stored templates.
func (s *TemplateStore) Len() int { return len(s.templates) }

//Personal.AI order the ending

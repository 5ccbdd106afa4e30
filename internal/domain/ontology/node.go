// Package ontology models the offense taxonomy used to classify legal cases,
// the fact-extraction templates attached to its leaves, and the cascading
// resolver that picks a template for a case.
package ontology

import (
	"fmt"
	"sort"
	"strings"

	"github.com/turtacn/casemind/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Node
// ─────────────────────────────────────────────────────────────────────────────

// Node is one taxonomy entry.  A node without children is a leaf; leaves
// carry fact-extraction templates.
type Node struct {
	ID           string   `json:"node_id"`
	Label        string   `json:"label"`
	ParentID     string   `json:"parent_id,omitempty"`
	SectionCodes []string `json:"section_codes,omitempty"`
	ExampleTerms []string `json:"example_terms,omitempty"`
	ChildIDs     []string `json:"children_ids,omitempty"`
}

// IsLeaf reports whether the node has no children.
func (n Node) IsLeaf() bool { return len(n.ChildIDs) == 0 }

func (n Node) clone() Node {
	n.SectionCodes = append([]string(nil), n.SectionCodes...)
	n.ExampleTerms = append([]string(nil), n.ExampleTerms...)
	n.ChildIDs = append([]string(nil), n.ChildIDs...)
	return n
}

// ─────────────────────────────────────────────────────────────────────────────
// Ontology
// ─────────────────────────────────────────────────────────────────────────────

// Ontology is an immutable tree of nodes stored as a flat map with parent
// back-references.  Construct it with New; the zero value is empty.
type Ontology struct {
	nodes        map[string]*Node
	ids          []string            // sorted
	sectionIndex map[string][]string // normalised code → sorted node ids
	terms        map[string][]string // node id → distinct normalised terms
}

// New validates nodes and builds an Ontology.  Children may be declared on
// the parent, through ParentID on the child, or both; the two must agree.
// Missing identifiers, dangling references, a node with two parents, and
// parent cycles are reported as validation errors.
func New(nodes []Node) (*Ontology, error) {
	o := &Ontology{
		nodes:        make(map[string]*Node, len(nodes)),
		sectionIndex: make(map[string][]string),
		terms:        make(map[string][]string),
	}

	for i, n := range nodes {
		n.ID = strings.TrimSpace(n.ID)
		n.Label = strings.TrimSpace(n.Label)
		if n.ID == "" {
			return nil, errors.New(errors.ErrCodeOntologyInvalid, "ontology node is missing node_id").
				WithDetail(fmt.Sprintf("index %d", i))
		}
		if n.Label == "" {
			return nil, errors.New(errors.ErrCodeOntologyInvalid, "ontology node is missing label").
				WithDetail(n.ID)
		}
		if _, dup := o.nodes[n.ID]; dup {
			return nil, errors.New(errors.ErrCodeOntologyInvalid, "duplicate ontology node").WithDetail(n.ID)
		}
		c := n.clone()
		o.nodes[n.ID] = &c
	}

	if err := o.linkChildren(); err != nil {
		return nil, err
	}
	if err := o.checkCycles(); err != nil {
		return nil, err
	}
	o.buildIndexes()
	return o, nil
}

// linkChildren reconciles declared children with parent references.
func (o *Ontology) linkChildren() error {
	ids := make([]string, 0, len(o.nodes))
	for id := range o.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		n := o.nodes[id]
		for _, childID := range n.ChildIDs {
			child, ok := o.nodes[childID]
			if !ok {
				return errors.New(errors.ErrCodeOntologyInvalid, "unknown child reference").
					WithDetail(fmt.Sprintf("%s -> %s", id, childID))
			}
			switch child.ParentID {
			case "":
				child.ParentID = id
			case id:
			default:
				return errors.New(errors.ErrCodeOntologyInvalid, "node has more than one parent").
					WithDetail(fmt.Sprintf("%s claimed by %s and %s", childID, child.ParentID, id))
			}
		}
	}

	children := make(map[string][]string, len(o.nodes))
	for _, id := range ids {
		n := o.nodes[id]
		if n.ParentID == "" {
			continue
		}
		if _, ok := o.nodes[n.ParentID]; !ok {
			return errors.New(errors.ErrCodeOntologyInvalid, "unknown parent reference").
				WithDetail(fmt.Sprintf("%s -> %s", id, n.ParentID))
		}
		children[n.ParentID] = append(children[n.ParentID], id)
	}
	for _, id := range ids {
		o.nodes[id].ChildIDs = children[id]
	}
	o.ids = ids
	return nil
}

// checkCycles walks every parent chain; a chain longer than the node count
// can only be a cycle.
func (o *Ontology) checkCycles() error {
	for _, id := range o.ids {
		seen := make(map[string]struct{}, 4)
		cur := id
		for cur != "" {
			if _, ok := seen[cur]; ok {
				return errors.New(errors.ErrCodeOntologyCycle, "ontology parent chain forms a cycle").WithDetail(id)
			}
			seen[cur] = struct{}{}
			cur = o.nodes[cur].ParentID
		}
	}
	return nil
}

func (o *Ontology) buildIndexes() {
	for _, id := range o.ids {
		n := o.nodes[id]
		codes := make(map[string]struct{}, len(n.SectionCodes))
		for _, code := range n.SectionCodes {
			norm := NormalizeSection(code)
			if norm == "" {
				continue
			}
			if _, ok := codes[norm]; ok {
				continue
			}
			codes[norm] = struct{}{}
			o.sectionIndex[norm] = append(o.sectionIndex[norm], id)
		}

		seen := make(map[string]struct{}, len(n.ExampleTerms))
		for _, term := range n.ExampleTerms {
			norm := normalizeTerm(term)
			if norm == "" {
				continue
			}
			if _, ok := seen[norm]; ok {
				continue
			}
			seen[norm] = struct{}{}
			o.terms[id] = append(o.terms[id], norm)
		}
	}
}

// Len returns the number of nodes.
func (o *Ontology) Len() int {
	if o == nil {
		return 0
	}
	return len(o.ids)
}

// IDs returns every node id in ascending order.
func (o *Ontology) IDs() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.ids...)
}

// Get returns a copy of the node with the given id.
func (o *Ontology) Get(id string) (Node, bool) {
	if o == nil {
		return Node{}, false
	}
	n, ok := o.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

// Has reports whether id names a node.
func (o *Ontology) Has(id string) bool {
	if o == nil {
		return false
	}
	_, ok := o.nodes[id]
	return ok
}

// IsLeaf reports whether id names a node without children.
func (o *Ontology) IsLeaf(id string) bool {
	if o == nil {
		return false
	}
	n, ok := o.nodes[id]
	return ok && n.IsLeaf()
}

// Roots returns the ids of nodes without a parent.
func (o *Ontology) Roots() []string {
	if o == nil {
		return nil
	}
	var roots []string
	for _, id := range o.ids {
		if o.nodes[id].ParentID == "" {
			roots = append(roots, id)
		}
	}
	return roots
}

// Leaves returns the ids of all leaf nodes.
func (o *Ontology) Leaves() []string {
	if o == nil {
		return nil
	}
	var leaves []string
	for _, id := range o.ids {
		if o.nodes[id].IsLeaf() {
			leaves = append(leaves, id)
		}
	}
	return leaves
}

// AncestorPath returns the labels from the root down to id, inclusive.
func (o *Ontology) AncestorPath(id string) []string {
	ids := o.ancestorIDs(id)
	labels := make([]string, len(ids))
	for i, aid := range ids {
		labels[i] = o.nodes[aid].Label
	}
	return labels
}

// ancestorIDs returns node ids from the root down to id.  The walk is bounded
// by the node count even though New already rejects cycles.
func (o *Ontology) ancestorIDs(id string) []string {
	if o == nil {
		return nil
	}
	var rev []string
	cur := id
	for steps := 0; cur != "" && steps <= len(o.ids); steps++ {
		n, ok := o.nodes[cur]
		if !ok {
			break
		}
		rev = append(rev, cur)
		cur = n.ParentID
	}
	out := make([]string, len(rev))
	for i := range rev {
		out[i] = rev[len(rev)-1-i]
	}
	return out
}

// nodesForSection returns the node ids registered for a normalised code.
func (o *Ontology) nodesForSection(code string) []string {
	if o == nil {
		return nil
	}
	return o.sectionIndex[code]
}

// termsFor returns the distinct normalised example terms of a node.
func (o *Ontology) termsFor(id string) []string {
	if o == nil {
		return nil
	}
	return o.terms[id]
}

//Personal.AI order the ending

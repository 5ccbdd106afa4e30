package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/turtacn/casemind/internal/domain/ontology"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/pkg/errors"
)

const loadOntologyCypher = `
MATCH (n:OntologyNode)
OPTIONAL MATCH (n)-[:CHILD_OF]->(p:OntologyNode)
RETURN n.node_id AS node_id, n.label AS label,
       coalesce(n.section_codes, []) AS section_codes,
       coalesce(n.example_terms, []) AS example_terms,
       collect(p.node_id) AS parents
ORDER BY node_id`

const seedNodesCypher = `
UNWIND $nodes AS node
MERGE (n:OntologyNode {node_id: node.node_id})
SET n.label = node.label,
    n.section_codes = node.section_codes,
    n.example_terms = node.example_terms`

const seedEdgesCypher = `
UNWIND $edges AS edge
MATCH (c:OntologyNode {node_id: edge.child}), (p:OntologyNode {node_id: edge.parent})
MERGE (c)-[:CHILD_OF]->(p)`

// Executor runs managed transactions.  *Driver implements it.
type Executor interface {
	ExecuteRead(ctx context.Context, work TransactionWork) (any, error)
	ExecuteWrite(ctx context.Context, work TransactionWork) (any, error)
}

// OntologySource loads the taxonomy from (:OntologyNode) vertices and their
// CHILD_OF edges.  It implements ontology.Source.
type OntologySource struct {
	exec   Executor
	logger logging.Logger
}

var _ ontology.Source = (*OntologySource)(nil)

// NewOntologySource creates an OntologySource over exec.
func NewOntologySource(exec Executor, log logging.Logger) *OntologySource {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &OntologySource{exec: exec, logger: log.Named("ontology-graph")}
}

// Load reads every node and builds a validated ontology.  A node with more
// than one CHILD_OF edge is rejected.
func (s *OntologySource) Load(ctx context.Context) (*ontology.Ontology, error) {
	out, err := s.exec.ExecuteRead(ctx, func(tx Transaction) (any, error) {
		result, err := tx.Run(ctx, loadOntologyCypher, nil)
		if err != nil {
			return nil, err
		}
		return CollectRecords(ctx, result, recordToRow)
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "load ontology from graph")
	}
	rows, _ := out.([]nodeRow)
	if len(rows) == 0 {
		return nil, errors.New(errors.ErrCodeOntologyInvalid, "graph contains no ontology nodes")
	}
	nodes := make([]ontology.Node, 0, len(rows))
	for _, row := range rows {
		n, err := row.node()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	ont, err := ontology.New(nodes)
	if err != nil {
		return nil, err
	}
	s.logger.Info("ontology loaded from graph", logging.Int("nodes", ont.Len()))
	return ont, nil
}

// Seed writes ont into the graph: nodes are merged by node_id and CHILD_OF
// edges added.  Existing extra nodes and edges are left in place.
func (s *OntologySource) Seed(ctx context.Context, ont *ontology.Ontology) error {
	ids := ont.IDs()
	nodes := make([]map[string]any, 0, len(ids))
	edges := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		n, _ := ont.Get(id)
		nodes = append(nodes, map[string]any{
			"node_id":       n.ID,
			"label":         n.Label,
			"section_codes": nonNil(n.SectionCodes),
			"example_terms": nonNil(n.ExampleTerms),
		})
		if n.ParentID != "" {
			edges = append(edges, map[string]any{"child": n.ID, "parent": n.ParentID})
		}
	}

	_, err := s.exec.ExecuteWrite(ctx, func(tx Transaction) (any, error) {
		if _, err := tx.Run(ctx, seedNodesCypher, map[string]any{"nodes": nodes}); err != nil {
			return nil, err
		}
		if len(edges) == 0 {
			return nil, nil
		}
		_, err := tx.Run(ctx, seedEdgesCypher, map[string]any{"edges": edges})
		return nil, err
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "seed ontology graph")
	}
	s.logger.Info("ontology written to graph",
		logging.Int("nodes", len(nodes)),
		logging.Int("edges", len(edges)))
	return nil
}

// nodeRow is one result row before validation.
type nodeRow struct {
	ontology.Node
	parents []string
}

func recordToRow(r *neo4j.Record) (nodeRow, error) {
	id, _ := stringValue(r, "node_id")
	label, _ := stringValue(r, "label")
	return nodeRow{
		Node: ontology.Node{
			ID:           id,
			Label:        label,
			SectionCodes: stringList(r, "section_codes"),
			ExampleTerms: stringList(r, "example_terms"),
		},
		parents: stringList(r, "parents"),
	}, nil
}

func (row nodeRow) node() (ontology.Node, error) {
	n := row.Node
	switch len(row.parents) {
	case 0:
	case 1:
		n.ParentID = row.parents[0]
	default:
		return ontology.Node{}, errors.New(errors.ErrCodeOntologyInvalid, "node has more than one parent").
			WithDetail(fmt.Sprintf("%s -> %v", n.ID, row.parents))
	}
	return n, nil
}

func stringValue(r *neo4j.Record, key string) (string, bool) {
	v, ok := r.Get(key)
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func stringList(r *neo4j.Record, key string) []string {
	v, ok := r.Get(key)
	if !ok || v == nil {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

//Personal.AI order the ending

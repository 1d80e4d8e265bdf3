package graph

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kmflow/kmflow-backend/internal/ontology"
	"github.com/kmflow/kmflow-backend/internal/platform/neo4jdb"
)

// BridgeEdge is one inferred semantic bridge between two elements.
type BridgeEdge struct {
	Rel        string
	FromLabel  string
	FromNorm   string
	ToLabel    string
	ToNorm     string
	ToName     string
	Confidence float64
	Status     string // confirmed | suggested
}

// UpsertBridges writes inferred bridges for one engagement. Each edge is
// ontology-checked before it hits the graph.
func UpsertBridges(ctx context.Context, c *neo4jdb.Client, ont *ontology.Ontology, engagementID string, edges []BridgeEdge) error {
	if c == nil || len(edges) == 0 {
		return nil
	}
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.Database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, e := range edges {
			if err := ont.EdgeAllowed(e.Rel, e.FromLabel, e.ToLabel); err != nil {
				return nil, fmt.Errorf("graph: bridge %s: %w", e.Rel, err)
			}
			stmt := fmt.Sprintf(`
				MATCH (from:%s {engagement_id: $engagement_id, name_norm: $from_norm})
				MERGE (to:%s {engagement_id: $engagement_id, name_norm: $to_norm})
				ON CREATE SET to.name = $to_name, to.brightness = 'dark', to.evidence_grade = 'U'
				MERGE (from)-[r:%s]->(to)
				SET r.confidence = $conf, r.status = $status, r.inferred = true, r.updated_at = timestamp()
			`, e.FromLabel, e.ToLabel, e.Rel)
			if _, err := tx.Run(ctx, stmt, map[string]any{
				"engagement_id": engagementID,
				"from_norm":     e.FromNorm,
				"to_norm":       e.ToNorm,
				"to_name":       e.ToName,
				"conf":          e.Confidence,
				"status":        e.Status,
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// RetractBridge removes an inferred bridge whose precondition no longer
// holds. Only edges written as inferred are eligible.
func RetractBridge(ctx context.Context, c *neo4jdb.Client, engagementID string, e BridgeEdge) error {
	if c == nil {
		return nil
	}
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.Database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	stmt := fmt.Sprintf(`
		MATCH (from:%s {engagement_id: $engagement_id, name_norm: $from_norm})
		      -[r:%s {inferred: true}]->
		      (to:%s {engagement_id: $engagement_id, name_norm: $to_norm})
		DELETE r
	`, e.FromLabel, e.Rel, e.ToLabel)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, stmt, map[string]any{
			"engagement_id": engagementID,
			"from_norm":     e.FromNorm,
			"to_norm":       e.ToNorm,
		})
	})
	return err
}

func normLite(name string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

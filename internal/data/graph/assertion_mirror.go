// Package graph mirrors scored process elements and their claim-implied
// relationships into Neo4j. Postgres stays the source of truth; every write
// here is an idempotent MERGE keyed on (engagement_id, name_norm) so the
// mirror can be rebuilt at any time.
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kmflow/kmflow-backend/internal/domain"
	"github.com/kmflow/kmflow-backend/internal/ontology"
	"github.com/kmflow/kmflow-backend/internal/platform/logger"
	"github.com/kmflow/kmflow-backend/internal/platform/neo4jdb"
)

// EnsureSchema creates uniqueness constraints for every node label. Best
// effort: failures are logged and swallowed so older Neo4j versions still
// work.
func EnsureSchema(ctx context.Context, c *neo4jdb.Client, ont *ontology.Ontology, log *logger.Logger) {
	if c == nil {
		return
	}
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.Database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	for label := range ont.NodeTypes {
		stmt := fmt.Sprintf(
			"CREATE CONSTRAINT IF NOT EXISTS FOR (n:%s) REQUIRE (n.engagement_id, n.name_norm) IS UNIQUE",
			label,
		)
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			log.Warn("neo4j constraint init failed", "label", label, "error", err)
		}
	}
}

type edgeRow struct {
	rel       string
	fromLabel string
	fromNorm  string
	toLabel   string
	toNorm    string
	toName    string
	conf      float64
}

// UpsertElement mirrors one element node plus the edges implied by its
// active assertions.
func UpsertElement(ctx context.Context, c *neo4jdb.Client, ont *ontology.Ontology, el *domain.ProcessElement, assertions []*domain.Assertion, log *logger.Logger) error {
	if c == nil {
		return nil
	}
	label, ok := ont.LabelForKind(el.Kind)
	if !ok {
		return fmt.Errorf("graph: no label for kind %s", el.Kind)
	}

	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.Database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	edges := edgesFromClaims(ont, label, el, assertions)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		nodeStmt := fmt.Sprintf(`
			MERGE (e:%s {engagement_id: $engagement_id, name_norm: $name_norm})
			SET e.name = $name,
			    e.confidence = $confidence,
			    e.brightness = $brightness,
			    e.evidence_grade = $grade,
			    e.merge_candidate = $merge_candidate,
			    e.updated_at = timestamp()
		`, label)
		if _, err := tx.Run(ctx, nodeStmt, map[string]any{
			"engagement_id":   el.EngagementID.String(),
			"name_norm":       el.NameNorm,
			"name":            el.Name,
			"confidence":      el.Confidence,
			"brightness":      el.Brightness,
			"grade":           el.EvidenceGrade,
			"merge_candidate": el.MergeCandidate,
		}); err != nil {
			return nil, err
		}

		// Group rows per (rel, fromLabel, toLabel) so labels stay static in
		// each statement and the rows ride through UNWIND.
		grouped := map[string][]map[string]any{}
		shapes := map[string]edgeRow{}
		for _, e := range edges {
			key := e.rel + "|" + e.fromLabel + "|" + e.toLabel
			shapes[key] = e
			grouped[key] = append(grouped[key], map[string]any{
				"from_norm": e.fromNorm,
				"to_norm":   e.toNorm,
				"to_name":   e.toName,
				"conf":      e.conf,
			})
		}
		for key, rows := range grouped {
			shape := shapes[key]
			stmt := fmt.Sprintf(`
				UNWIND $rows AS row
				MATCH (from:%s {engagement_id: $engagement_id, name_norm: row.from_norm})
				MERGE (to:%s {engagement_id: $engagement_id, name_norm: row.to_norm})
				ON CREATE SET to.name = row.to_name, to.brightness = 'dark', to.evidence_grade = 'U'
				MERGE (from)-[r:%s]->(to)
				SET r.confidence = row.conf, r.updated_at = timestamp()
			`, shape.fromLabel, shape.toLabel, shape.rel)
			if _, err := tx.Run(ctx, stmt, map[string]any{
				"engagement_id": el.EngagementID.String(),
				"rows":          rows,
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		log.Warn("element mirror failed", "element_id", el.ID, "error", err)
	}
	return err
}

// edgesFromClaims turns active relational claims into mirror edges. The
// target node is merged under the claim's default object label; sequence
// "follows" claims flip the edge so PRECEDES always points forward.
func edgesFromClaims(ont *ontology.Ontology, elLabel string, el *domain.ProcessElement, assertions []*domain.Assertion) []edgeRow {
	var out []edgeRow
	for _, a := range assertions {
		if a.SupersededBy != nil {
			continue
		}
		p := a.Payload()
		objNorm := normLite(p.Object)
		if objNorm == "" {
			continue
		}
		var row edgeRow
		switch a.ClaimKind {
		case domain.ClaimSequence:
			row = edgeRow{rel: "PRECEDES", fromLabel: elLabel, fromNorm: el.NameNorm, toLabel: "Activity", toNorm: objNorm, toName: p.Object, conf: a.Confidence}
			if p.Direction == domain.SeqFollows {
				row.fromLabel, row.toLabel = "Activity", elLabel
				row.fromNorm, row.toNorm = objNorm, el.NameNorm
				row.toName = el.Name
			}
		case domain.ClaimRole:
			row = edgeRow{rel: "PERFORMED_BY", fromLabel: elLabel, fromNorm: el.NameNorm, toLabel: "Role", toNorm: objNorm, toName: p.Object, conf: a.Confidence}
		case domain.ClaimRule:
			row = edgeRow{rel: "GOVERNED_BY", fromLabel: elLabel, fromNorm: el.NameNorm, toLabel: "Policy", toNorm: objNorm, toName: p.Object, conf: a.Confidence}
		case domain.ClaimIO:
			rel := "PRODUCES"
			if p.Direction == domain.IOConsumes {
				rel = "CONSUMES"
			}
			row = edgeRow{rel: rel, fromLabel: elLabel, fromNorm: el.NameNorm, toLabel: "DataObject", toNorm: objNorm, toName: p.Object, conf: a.Confidence}
		default:
			continue
		}
		if err := ont.EdgeAllowed(row.rel, row.fromLabel, row.toLabel); err != nil {
			continue
		}
		out = append(out, row)
	}
	return out
}

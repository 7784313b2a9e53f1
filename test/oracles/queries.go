// Package oracles holds the SQL invariants checked repeatedly while the
// stress actors run. Every query returns rows only when an invariant is
// broken.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_partyb_distinct_from_partya",
			SQL:  `SELECT id FROM disputes WHERE party_b IS NOT NULL AND party_b = party_a`,
		},
		{
			Name: "O2_truth_unique_per_party",
			SQL: `SELECT dispute_id, party_id, COUNT(*) FROM truths
                  GROUP BY dispute_id, party_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_claim_requires_both_truths",
			SQL: `SELECT d.id FROM disputes d
                  WHERE d.resolution_claimed
                    AND (SELECT COUNT(DISTINCT party_id) FROM truths t WHERE t.dispute_id = d.id) < 2`,
		},
		{
			Name: "O4_resolution_requires_claim",
			SQL: `SELECT r.dispute_id FROM resolutions r
                  JOIN disputes d ON d.id = r.dispute_id
                  WHERE NOT d.resolution_claimed`,
		},
		{
			Name: "O5_resolved_at_implies_resolution",
			SQL: `SELECT d.id FROM disputes d
                  WHERE d.resolved_at IS NOT NULL
                    AND NOT EXISTS (SELECT 1 FROM resolutions r WHERE r.dispute_id = d.id)`,
		},
		{
			Name: "O6_signature_requires_flag",
			SQL: `SELECT s.dispute_id FROM signatures s
                  JOIN disputes d ON d.id = s.dispute_id
                  WHERE NOT d.requires_signature`,
		},
		{
			Name: "O7_signature_from_participant",
			SQL: `SELECT s.dispute_id, s.party_id FROM signatures s
                  JOIN disputes d ON d.id = s.dispute_id
                  WHERE s.party_id <> d.party_a AND (d.party_b IS NULL OR s.party_id <> d.party_b)`,
		},
		{
			Name: "O8_event_seq_monotonic",
			SQL: `WITH seqs AS (
                      SELECT dispute_id, seq,
                             LAG(seq) OVER (PARTITION BY dispute_id ORDER BY seq) AS prev
                      FROM dispute_events)
                  SELECT * FROM seqs WHERE prev IS NOT NULL AND seq <= prev`,
		},
		{
			Name: "O9_outbox_not_stuck",
			SQL: `SELECT id FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
		{
			Name: "O10_status_known",
			SQL: `SELECT id FROM disputes
                  WHERE status::text NOT IN ('invited','in_progress','analyzing','expert_review','resolved','appealed','archived')`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}

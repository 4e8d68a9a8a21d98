package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"jobmatch-engine/internal/domain"
)

// ReplaceMatches swaps the stored match set for a profile with the given
// results in one transaction.
func (d *DB) ReplaceMatches(ctx context.Context, profileID int64, results []domain.MatchResult) error {
	tx, err := d.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM matches WHERE profile_id = ?;`, profileID); err != nil {
		return fmt.Errorf("clear matches for profile %d: %w", profileID, err)
	}
	for _, r := range results {
		skills, _ := json.Marshal(emptySlice(r.MatchedSkills))
		if _, err := tx.ExecContext(ctx, `
INSERT INTO matches (profile_id, posting_id, score, matched_skills, experience_note, computed_at)
VALUES (?,?,?,?,?,?);`,
			profileID, r.PostingID, r.Score, string(skills), r.ExperienceNote,
			r.ComputedAt.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("insert match: %w", err)
		}
	}
	return tx.Commit()
}

// ListMatches returns a profile's stored matches, best score first. A zero
// limit means no limit.
func (d *DB) ListMatches(ctx context.Context, profileID int64, limit int) ([]domain.MatchResult, error) {
	q := `
SELECT profile_id, posting_id, score, matched_skills, experience_note, computed_at
FROM matches WHERE profile_id = ? ORDER BY score DESC, posting_id ASC`
	args := []any{profileID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := d.pool.QueryContext(ctx, q+";", args...)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var out []domain.MatchResult
	for rows.Next() {
		var (
			r        domain.MatchResult
			skills   string
			computed string
		)
		if err := rows.Scan(&r.ProfileID, &r.PostingID, &r.Score, &skills, &r.ExperienceNote, &computed); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(skills), &r.MatchedSkills)
		if t, err := time.Parse(time.RFC3339, computed); err == nil {
			r.ComputedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

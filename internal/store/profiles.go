package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"jobmatch-engine/internal/domain"
)

// GetProfile loads a candidate profile with its skills and work history.
func (d *DB) GetProfile(ctx context.Context, id int64) (domain.CandidateProfile, error) {
	var (
		p          domain.CandidateProfile
		industries string
	)
	err := d.pool.QueryRowContext(ctx, `
SELECT id, name, address, industries FROM profiles WHERE id = ?;`, id).
		Scan(&p.ID, &p.Name, &p.Address, &industries)
	if err == sql.ErrNoRows {
		return p, domain.NotFoundError("profile %d not found", id)
	}
	if err != nil {
		return p, fmt.Errorf("get profile %d: %w", id, err)
	}
	_ = json.Unmarshal([]byte(industries), &p.Industries)

	rows, err := d.pool.QueryContext(ctx, `
SELECT name FROM profile_skills WHERE profile_id = ? ORDER BY name;`, id)
	if err != nil {
		return p, fmt.Errorf("profile %d skills: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return p, err
		}
		p.Skills = append(p.Skills, s)
	}
	if err := rows.Err(); err != nil {
		return p, err
	}

	expRows, err := d.pool.QueryContext(ctx, `
SELECT title, company, years FROM work_experiences WHERE profile_id = ? ORDER BY id;`, id)
	if err != nil {
		return p, fmt.Errorf("profile %d experience: %w", id, err)
	}
	defer expRows.Close()
	for expRows.Next() {
		var e domain.WorkExperience
		if err := expRows.Scan(&e.Title, &e.Company, &e.Years); err != nil {
			return p, err
		}
		p.Experience = append(p.Experience, e)
	}
	return p, expRows.Err()
}

// InsertProfile stores a profile with its skills and experience entries and
// returns the new id.
func (d *DB) InsertProfile(ctx context.Context, p domain.CandidateProfile) (int64, error) {
	industries, _ := json.Marshal(emptySlice(p.Industries))

	tx, err := d.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
INSERT INTO profiles (name, address, industries) VALUES (?,?,?);`,
		p.Name, p.Address, string(industries))
	if err != nil {
		return 0, fmt.Errorf("insert profile: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, s := range p.Skills {
		if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO profile_skills (profile_id, name) VALUES (?,?);`, id, s); err != nil {
			return 0, fmt.Errorf("insert profile skill: %w", err)
		}
	}
	for _, e := range p.Experience {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO work_experiences (profile_id, title, company, years) VALUES (?,?,?,?);`,
			id, e.Title, e.Company, e.Years); err != nil {
			return 0, fmt.Errorf("insert work experience: %w", err)
		}
	}

	return id, tx.Commit()
}

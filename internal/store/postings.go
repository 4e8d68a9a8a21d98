package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"jobmatch-engine/internal/domain"
)

// InsertPostingIgnore stores p unless an identical identity already exists.
// Dedupe relies on the partial unique indexes over (source, external_id)
// and (source, detail_url).
func (d *DB) InsertPostingIgnore(ctx context.Context, p domain.Posting) (added bool, err error) {
	locations, _ := json.Marshal(emptySlice(p.Locations))
	skills, _ := json.Marshal(emptySlice(p.RequiredSkills))

	var postedAt any
	if p.PostedAt != nil {
		postedAt = p.PostedAt.UTC().Format(time.RFC3339)
	}

	_, err = d.pool.ExecContext(ctx, `
INSERT OR IGNORE INTO postings
  (source, external_id, title, company, locations, description, detail_url,
   posted_at, salary, experience_level, years_of_experience, industry,
   skills, benefits, raw_payload, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?);`,
		string(p.Source), p.ExternalID, p.Title, p.Company, string(locations),
		p.Description, p.DetailURL, postedAt, p.SalaryText, p.ExperienceLevel,
		p.YearsOfExperience, p.Industry, string(skills), p.Benefits,
		string(p.RawPayload), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("insert posting: %w", err)
	}

	// SQLite drivers disagree on RowsAffected with OR IGNORE; changes() is
	// reliable on the same connection because the pool holds exactly one.
	var changes int
	if e := d.pool.QueryRowContext(ctx, `SELECT changes();`).Scan(&changes); e == nil {
		return changes > 0, nil
	}
	return true, nil
}

// ListPostings returns stored postings, newest first. A limit of 0 means
// no limit.
func (d *DB) ListPostings(ctx context.Context, limit int) ([]domain.Posting, error) {
	q := `
SELECT id, source, external_id, title, company, locations, description,
       detail_url, posted_at, salary, experience_level, years_of_experience,
       industry, skills, benefits
FROM postings
ORDER BY id DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.pool.QueryContext(ctx, q+";", args...)
	if err != nil {
		return nil, fmt.Errorf("list postings: %w", err)
	}
	defer rows.Close()

	var out []domain.Posting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *DB) GetPosting(ctx context.Context, id int64) (domain.Posting, error) {
	row := d.pool.QueryRowContext(ctx, `
SELECT id, source, external_id, title, company, locations, description,
       detail_url, posted_at, salary, experience_level, years_of_experience,
       industry, skills, benefits
FROM postings WHERE id = ?;`, id)

	p, err := scanPosting(row)
	if err == sql.ErrNoRows {
		return domain.Posting{}, domain.NotFoundError("posting %d not found", id)
	}
	return p, err
}

func (d *DB) CountPostings(ctx context.Context) (int, error) {
	var n int
	err := d.pool.QueryRowContext(ctx, `SELECT COUNT(*) FROM postings;`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosting(row rowScanner) (domain.Posting, error) {
	var (
		p         domain.Posting
		source    string
		locations string
		skills    string
		postedAt  sql.NullString
	)
	err := row.Scan(&p.ID, &source, &p.ExternalID, &p.Title, &p.Company,
		&locations, &p.Description, &p.DetailURL, &postedAt, &p.SalaryText,
		&p.ExperienceLevel, &p.YearsOfExperience, &p.Industry, &skills,
		&p.Benefits)
	if err != nil {
		return p, err
	}

	p.Source = domain.Source(source)
	_ = json.Unmarshal([]byte(locations), &p.Locations)
	_ = json.Unmarshal([]byte(skills), &p.RequiredSkills)
	if postedAt.Valid && postedAt.String != "" {
		if t, err := time.Parse(time.RFC3339, postedAt.String); err == nil {
			p.PostedAt = &t
		}
	}
	return p, nil
}

func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

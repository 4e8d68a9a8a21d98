package store

func (d *DB) migrate() error {
	tx, err := d.pool.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}
	if v >= 1 {
		return tx.Commit()
	}

	// ---- Schema v1: tables ----

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS postings (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source TEXT NOT NULL,
  external_id TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL DEFAULT '',
  company TEXT NOT NULL DEFAULT '',
  locations TEXT NOT NULL DEFAULT '[]',
  description TEXT NOT NULL DEFAULT '',
  detail_url TEXT NOT NULL DEFAULT '',
  posted_at TEXT,
  salary TEXT NOT NULL DEFAULT '',
  experience_level TEXT NOT NULL DEFAULT '',
  years_of_experience TEXT NOT NULL DEFAULT '',
  industry TEXT NOT NULL DEFAULT '',
  skills TEXT NOT NULL DEFAULT '[]',
  benefits TEXT NOT NULL DEFAULT '',
  raw_payload TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS profiles (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL DEFAULT '',
  address TEXT NOT NULL DEFAULT '',
  industries TEXT NOT NULL DEFAULT '[]'
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS profile_skills (
  profile_id INTEGER NOT NULL REFERENCES profiles(id),
  name TEXT NOT NULL,
  PRIMARY KEY (profile_id, name)
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS work_experiences (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  profile_id INTEGER NOT NULL REFERENCES profiles(id),
  title TEXT NOT NULL DEFAULT '',
  company TEXT NOT NULL DEFAULT '',
  years REAL NOT NULL DEFAULT 0
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS matches (
  profile_id INTEGER NOT NULL,
  posting_id INTEGER NOT NULL,
  score REAL NOT NULL,
  matched_skills TEXT NOT NULL DEFAULT '[]',
  experience_note TEXT NOT NULL DEFAULT '',
  computed_at TEXT NOT NULL,
  PRIMARY KEY (profile_id, posting_id)
);
`); err != nil {
		return err
	}

	// ---- Schema v1: indexes ----

	if _, err := tx.Exec(`
CREATE UNIQUE INDEX IF NOT EXISTS idx_postings_identity
ON postings(source, external_id)
WHERE external_id != '';
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE UNIQUE INDEX IF NOT EXISTS idx_postings_detail_url
ON postings(source, detail_url)
WHERE external_id = '' AND detail_url != '';
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_matches_profile_score
ON matches(profile_id, score DESC);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`PRAGMA user_version = 1;`); err != nil {
		return err
	}

	return tx.Commit()
}

package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"jobmatch-engine/internal/domain"
)

// AuditWriter drops one JSON file per extraction run under the outputs
// directory, one compact record per line. A flock sidecar guards the
// directory against a second engine process writing the same run name.
type AuditWriter struct {
	dir string
}

func NewAuditWriter(dir string) *AuditWriter {
	return &AuditWriter{dir: dir}
}

// WriteRun persists the run's postings to <dir>/<source>_<timestamp>.json
// and returns the file path.
func (w *AuditWriter) WriteRun(source string, at time.Time, postings []domain.Posting) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create outputs dir: %w", err)
	}

	lock := flock.New(filepath.Join(w.dir, ".audit.lock"))
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("lock outputs dir: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	name := fmt.Sprintf("%s_%s.json", source, at.UTC().Format("20060102_150405"))
	path := filepath.Join(w.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, p := range postings {
		if err := enc.Encode(p); err != nil {
			return "", fmt.Errorf("write audit record: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		return "", err
	}
	return path, nil
}

package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/rank"
	"jobmatch-engine/internal/scrape"
	"jobmatch-engine/internal/scrape/types"
	"jobmatch-engine/internal/store"
	"jobmatch-engine/internal/task"
)

type stubSource struct {
	name     string
	postings []domain.Posting
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) ListPage(context.Context, types.PageToken) (types.Page, error) {
	return types.Page{Postings: s.postings}, nil
}

func newTestCoordinator(t *testing.T, sources ...types.Source) (*Coordinator, *store.DB, string) {
	t.Helper()

	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	runner := scrape.NewRunner(zap.NewNop(), 0, 0)
	for _, s := range sources {
		runner.Register(s)
	}

	orch := task.New(zap.NewNop(), nil, task.Options{BackoffBase: time.Millisecond, BackoffCap: 10 * time.Millisecond})
	orch.Start()
	t.Cleanup(func() { _ = orch.Close() })

	outputs := filepath.Join(dir, "outputs")
	coord := NewCoordinator(zap.NewNop(), runner, rank.New(), db, orch, NewAuditWriter(outputs))
	return coord, db, outputs
}

func waitTerminal(t *testing.T, c *Coordinator, id string) task.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := c.TaskStatus(id)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if snap.State.Terminal() {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("task %s never finished", id)
	return task.Snapshot{}
}

func sample(id string) domain.Posting {
	return domain.Posting{
		Source:         "stub",
		ExternalID:     id,
		Title:          "job " + id,
		RequiredSkills: []string{"Go"},
	}
}

func TestStartExtractionRejectsBadInputBeforeTaskExists(t *testing.T) {
	coord, _, _ := newTestCoordinator(t, &stubSource{name: "stub"})

	cases := []struct {
		name   string
		source string
		max    int
	}{
		{"unknown source", "nope", 10},
		{"zero cap", "stub", 0},
		{"cap above limit", "stub", 501},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := coord.StartExtraction(tc.source, tc.max)
			if !domain.IsKind(err, domain.KindValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
		})
	}

	if got := coord.Tasks(); len(got) != 0 {
		t.Fatalf("rejected inputs still created %d task(s)", len(got))
	}
}

func TestExtractionPersistsAndAudits(t *testing.T) {
	src := &stubSource{name: "stub", postings: []domain.Posting{sample("a"), sample("b")}}
	coord, db, outputs := newTestCoordinator(t, src)

	id, err := coord.StartExtraction("stub", 10)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	snap := waitTerminal(t, coord, id)
	if snap.State != task.StateSucceeded {
		t.Fatalf("state = %s (%s)", snap.State, snap.Error)
	}

	result, ok := snap.Result.(ExtractionResult)
	if !ok {
		t.Fatalf("result type %T", snap.Result)
	}
	if result.Fetched != 2 || result.Added != 2 {
		t.Fatalf("result = %+v", result)
	}

	if n, _ := db.CountPostings(context.Background()); n != 2 {
		t.Fatalf("stored %d postings, want 2", n)
	}

	f, err := os.Open(result.AuditFile)
	if err != nil {
		t.Fatalf("audit file: %v", err)
	}
	defer f.Close()
	if filepath.Dir(result.AuditFile) != outputs {
		t.Fatalf("audit file %s not under %s", result.AuditFile, outputs)
	}

	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var p domain.Posting
		if err := json.Unmarshal(sc.Bytes(), &p); err != nil {
			t.Fatalf("audit line %d is not JSON: %v", lines+1, err)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("audit has %d lines, want 2", lines)
	}
}

func TestExtractionRerunAddsNothingNew(t *testing.T) {
	src := &stubSource{name: "stub", postings: []domain.Posting{sample("a")}}
	coord, _, _ := newTestCoordinator(t, src)

	first, _ := coord.StartExtraction("stub", 10)
	waitTerminal(t, coord, first)

	second, _ := coord.StartExtraction("stub", 10)
	snap := waitTerminal(t, coord, second)

	result := snap.Result.(ExtractionResult)
	if result.Fetched != 1 || result.Added != 0 {
		t.Fatalf("rerun result = %+v, want fetched 1 added 0", result)
	}
}

func TestScoreProfileEndToEnd(t *testing.T) {
	src := &stubSource{name: "stub", postings: []domain.Posting{
		{Source: "stub", ExternalID: "good", RequiredSkills: []string{"Go", "SQL"}},
		{Source: "stub", ExternalID: "poor", RequiredSkills: []string{"Cobol", "Fortran", "Ada", "PL/I"}},
	}}
	coord, db, _ := newTestCoordinator(t, src)
	ctx := context.Background()

	run, _ := coord.StartExtraction("stub", 10)
	waitTerminal(t, coord, run)

	profileID, err := db.InsertProfile(ctx, domain.CandidateProfile{
		Name:   "Linh",
		Skills: []string{"Go", "SQL"},
	})
	if err != nil {
		t.Fatalf("insert profile: %v", err)
	}

	results, err := coord.ScoreProfile(ctx, profileID, 0.3, 0)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d matches, want 1 above threshold", len(results))
	}
	if results[0].Score != 1.0 {
		t.Fatalf("score = %v, want 1.0", results[0].Score)
	}

	stored, err := db.ListMatches(ctx, profileID, 0)
	if err != nil {
		t.Fatalf("list matches: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored %d matches, want 1", len(stored))
	}
}

func TestScoreProfileValidation(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	if _, err := coord.ScoreProfile(ctx, 1, 1.5, 0); !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("min score: err = %v, want validation", err)
	}
	if _, err := coord.ScoreProfile(ctx, 1, 0.3, 201); !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("limit: err = %v, want validation", err)
	}
	if _, err := coord.ScoreProfile(ctx, 99, 0.3, 10); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("missing profile: err = %v, want not_found", err)
	}
}

func TestStartScoringAsync(t *testing.T) {
	coord, db, _ := newTestCoordinator(t, &stubSource{
		name:     "stub",
		postings: []domain.Posting{{Source: "stub", ExternalID: "x", RequiredSkills: []string{"Go"}}},
	})
	ctx := context.Background()

	run, _ := coord.StartExtraction("stub", 10)
	waitTerminal(t, coord, run)

	profileID, err := db.InsertProfile(ctx, domain.CandidateProfile{Name: "Linh", Skills: []string{"Go"}})
	if err != nil {
		t.Fatalf("insert profile: %v", err)
	}

	id, err := coord.StartScoring(profileID, 0.3, 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := waitTerminal(t, coord, id)
	if snap.State != task.StateSucceeded {
		t.Fatalf("state = %s (%s)", snap.State, snap.Error)
	}
	if result := snap.Result.(ScoringResult); result.Kept != 1 {
		t.Fatalf("result = %+v, want 1 kept", result)
	}
}

func TestBatchScoringReportsPerProfile(t *testing.T) {
	coord, db, _ := newTestCoordinator(t, &stubSource{
		name:     "stub",
		postings: []domain.Posting{{Source: "stub", ExternalID: "x", RequiredSkills: []string{"Go"}}},
	})
	ctx := context.Background()

	run, _ := coord.StartExtraction("stub", 10)
	waitTerminal(t, coord, run)

	var ids []int64
	for _, name := range []string{"a", "b", "c"} {
		id, err := db.InsertProfile(ctx, domain.CandidateProfile{Name: name, Skills: []string{"Go"}})
		if err != nil {
			t.Fatalf("insert profile: %v", err)
		}
		ids = append(ids, id)
	}

	taskID, err := coord.StartBatchScoring(ids, 0.3, 0)
	if err != nil {
		t.Fatalf("start batch: %v", err)
	}

	snap := waitTerminal(t, coord, taskID)
	if snap.State != task.StateSucceeded {
		t.Fatalf("state = %s (%s)", snap.State, snap.Error)
	}
	result := snap.Result.(BatchScoringResult)
	if len(result.Profiles) != 3 {
		t.Fatalf("batch covered %d profiles, want 3", len(result.Profiles))
	}
	if snap.Progress.Current != 3 || snap.Progress.Total != 3 {
		t.Fatalf("progress = %+v, want 3/3", snap.Progress)
	}
}

func TestBatchScoringValidation(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)

	if _, err := coord.StartBatchScoring(nil, 0.3, 0); !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("empty batch: err = %v, want validation", err)
	}

	tooMany := make([]int64, 101)
	if _, err := coord.StartBatchScoring(tooMany, 0.3, 0); !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("oversized batch: err = %v, want validation", err)
	}
}

func TestScheduleAllSpawnsChildPerSource(t *testing.T) {
	coord, _, _ := newTestCoordinator(t,
		&stubSource{name: "alpha", postings: []domain.Posting{{Source: "alpha", ExternalID: "1"}}},
		&stubSource{name: "beta", postings: []domain.Posting{{Source: "beta", ExternalID: "2"}}},
	)

	id, err := coord.ScheduleAll(map[string]int{"alpha": 10, "beta": 10})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	snap := waitTerminal(t, coord, id)
	if snap.State != task.StateSucceeded {
		t.Fatalf("state = %s (%s)", snap.State, snap.Error)
	}

	children := snap.Result.(ScheduleResult).Children
	if len(children) != 2 {
		t.Fatalf("spawned %d children, want 2", len(children))
	}
	for _, child := range children {
		if cs := waitTerminal(t, coord, child); cs.State != task.StateSucceeded {
			t.Fatalf("child %s state = %s (%s)", child, cs.State, cs.Error)
		}
		snap2, _ := coord.TaskStatus(child)
		if snap2.Kind != task.KindExtraction {
			t.Fatalf("child kind = %s, want extraction", snap2.Kind)
		}
	}
}

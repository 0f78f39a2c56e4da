package matcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/triagehub/triagehub/internal/model"
	"github.com/triagehub/triagehub/internal/store"
	"github.com/triagehub/triagehub/internal/store/sqlite"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "matcher.db"))
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	return s
}

func seedMessage(t *testing.T, s store.Store, text string, cls model.Classification) *model.Message {
	t.Helper()
	ctx := context.Background()
	msg := &model.Message{
		MessageID: uuid.New().String(),
		SourceRef: "C1:" + uuid.New().String(),
		ChannelID: "C1",
		AuthorRef: "U1",
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if ok, err := s.Messages().Insert(ctx, msg); err != nil || !ok {
		t.Fatalf("insert message: ok=%v err=%v", ok, err)
	}
	if err := s.Messages().SetClassification(ctx, msg.MessageID, cls); err != nil {
		t.Fatalf("classify message: %v", err)
	}
	return msg
}

func bugCls(summary string) model.Classification {
	return model.Classification{Label: "bug_report", Confidence: 0.9, IsRelevant: true, Summary: summary}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *recordingPublisher) Publish(evt model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) all() []model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Event, len(p.events))
	copy(out, p.events)
	return out
}

func TestCommit_ExampleScenario(t *testing.T) {
	s := newTestStore(t)
	pub := &recordingPublisher{}
	m := New(s, pub, 0.78, zerolog.Nop())
	ctx := context.Background()

	login := seedMessage(t, s, "Login is broken", bugCls("Login broken"))
	darkMode := seedMessage(t, s, "Can we get dark mode?", model.Classification{
		Label: "feature_request", Confidence: 0.8, IsRelevant: true, Summary: "Dark mode request",
	})
	loginAgain := seedMessage(t, s, "Still seeing the login error", bugCls("Login error persists"))

	iss1, created, err := m.Commit(ctx, login, bugCls("Login broken"), []float32{1, 0, 0})
	if err != nil || !created {
		t.Fatalf("first commit: created=%v err=%v", created, err)
	}
	iss2, created, err := m.Commit(ctx, darkMode, model.Classification{
		Label: "feature_request", Confidence: 0.8, IsRelevant: true, Summary: "Dark mode request",
	}, []float32{0, 1, 0})
	if err != nil || !created {
		t.Fatalf("second commit: created=%v err=%v", created, err)
	}
	iss3, created, err := m.Commit(ctx, loginAgain, bugCls("Login error persists"), []float32{0.96, 0.1, 0})
	if err != nil || created {
		t.Fatalf("third commit should attach: created=%v err=%v", created, err)
	}
	if iss3.IssueID != iss1.IssueID {
		t.Fatalf("third message joined %s, want %s", iss3.IssueID, iss1.IssueID)
	}
	if iss1.IssueID == iss2.IssueID {
		t.Fatal("unrelated topics clustered together")
	}

	all, err := s.Issues().List(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("expected exactly 2 issues, got %d (err=%v)", len(all), err)
	}
	members, err := s.Messages().ListByIssue(ctx, iss1.IssueID)
	if err != nil || len(members) != 2 {
		t.Fatalf("login issue members: n=%d err=%v", len(members), err)
	}

	events := pub.all()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, evt := range events {
		if evt.Type != model.EventNewMessage {
			t.Fatalf("event %d type %s", i, evt.Type)
		}
	}
	if events[2].IssueID != iss1.IssueID || events[2].MessageID != loginAgain.MessageID {
		t.Fatalf("third event misattributed: %+v", events[2])
	}
}

func TestCommit_ConcurrentBurst_CreatesSingleIssue(t *testing.T) {
	s := newTestStore(t)
	m := New(s, nil, 0.78, zerolog.Nop())
	ctx := context.Background()

	const n = 8
	msgs := make([]*model.Message, n)
	embs := make([][]float32, n)
	for i := 0; i < n; i++ {
		msgs[i] = seedMessage(t, s, fmt.Sprintf("Checkout fails with error %d", i), bugCls("Checkout failing"))
		// Near-identical embeddings, all pairwise above threshold.
		embs[i] = []float32{1, float32(i) * 0.01, 0}
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, _, err := m.Commit(ctx, msgs[i], bugCls("Checkout failing"), embs[i]); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("commit: %v", err)
	}

	all, err := s.Issues().List(ctx)
	if err != nil {
		t.Fatalf("list issues: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("burst created %d issues, want 1", len(all))
	}
	if all[0].MemberCount != n {
		t.Fatalf("member count %d, want %d", all[0].MemberCount, n)
	}
}

func TestCommit_CentroidDeterministic(t *testing.T) {
	sequence := [][]float32{
		{1, 0, 0},
		{0.9, 0.2, 0},
		{0.95, 0.1, 0.05},
		{0.85, 0.3, 0.1},
	}

	replay := func() []float32 {
		s := newTestStore(t)
		m := New(s, nil, 0.5, zerolog.Nop())
		ctx := context.Background()
		var issueID string
		for i, e := range sequence {
			msg := seedMessage(t, s, fmt.Sprintf("login report %d", i), bugCls("Login broken"))
			iss, _, err := m.Commit(ctx, msg, bugCls("Login broken"), e)
			if err != nil {
				t.Fatalf("commit %d: %v", i, err)
			}
			issueID = iss.IssueID
		}
		iss, err := s.Issues().Get(ctx, issueID)
		if err != nil {
			t.Fatalf("get issue: %v", err)
		}
		return iss.Embedding
	}

	a := replay()
	b := replay()
	if len(a) != len(b) {
		t.Fatalf("dim mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("centroid not reproducible at dim %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestCommit_RaisedThresholdCreatesInsteadOfSwitching(t *testing.T) {
	// A message that matches its best candidate at ~0.95 and a weaker
	// candidate at ~0.89. Raising the threshold above 0.95 must create a new
	// issue, never fall back to the weaker candidate.
	seed := func(thr float64) (store.Store, *Matcher) {
		s := newTestStore(t)
		m := New(s, nil, thr, zerolog.Nop())
		ctx := context.Background()
		a := seedMessage(t, s, "Password reset emails bouncing", bugCls("Reset emails bounce"))
		if _, _, err := m.Commit(ctx, a, bugCls("Reset emails bounce"), []float32{1, 0, 0}); err != nil {
			t.Fatalf("seed a: %v", err)
		}
		b := seedMessage(t, s, "Search results are stale", bugCls("Search stale"))
		if _, _, err := m.Commit(ctx, b, bugCls("Search stale"), []float32{0.7, 0.7, 0}); err != nil {
			t.Fatalf("seed b: %v", err)
		}
		return s, m
	}

	probe := []float32{0.9, 0.3, 0}

	// Low threshold: attaches to the best candidate.
	sLow, mLow := seed(0.92)
	msg := seedMessage(t, sLow, "Another reset email bounced", bugCls("Reset emails bounce"))
	_, created, err := mLow.Commit(context.Background(), msg, bugCls("Reset emails bounce"), probe)
	if err != nil || created {
		t.Fatalf("low threshold should attach: created=%v err=%v", created, err)
	}

	// High threshold: same probe now creates; it must not switch to the
	// weaker candidate.
	sHigh, mHigh := seed(0.97)
	msg = seedMessage(t, sHigh, "Another reset email bounced", bugCls("Reset emails bounce"))
	_, created, err = mHigh.Commit(context.Background(), msg, bugCls("Reset emails bounce"), probe)
	if err != nil || !created {
		t.Fatalf("high threshold should create: created=%v err=%v", created, err)
	}
	all, _ := sHigh.Issues().List(context.Background())
	if len(all) != 3 {
		t.Fatalf("expected 3 issues after high-threshold create, got %d", len(all))
	}
}

func TestCommit_TieBreakPrefersMostRecentlyUpdated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mkIssue := func(title string) *model.Issue {
		msg := seedMessage(t, s, title, bugCls(title))
		iss := &model.Issue{
			IssueID:        uuid.New().String(),
			Title:          title,
			Classification: "bug_report",
			Embedding:      []float32{0, 1, 0},
		}
		out, err := s.Issues().CreateWithMember(ctx, iss, msg.MessageID, []float32{0, 1, 0})
		if err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
		return out
	}

	older := mkIssue("older")
	time.Sleep(10 * time.Millisecond)
	newer := mkIssue("newer")

	m := New(s, nil, 0.78, zerolog.Nop())
	msg := seedMessage(t, s, "same topic again", bugCls("same topic"))
	got, created, err := m.Commit(ctx, msg, bugCls("same topic"), []float32{0, 1, 0})
	if err != nil || created {
		t.Fatalf("commit: created=%v err=%v", created, err)
	}
	if got.IssueID != newer.IssueID {
		t.Fatalf("tie went to %s, want most recent %s (older=%s)", got.IssueID, newer.IssueID, older.IssueID)
	}
}

func TestCommit_ResolvedIssueIsNotACandidate(t *testing.T) {
	s := newTestStore(t)
	m := New(s, nil, 0.78, zerolog.Nop())
	ctx := context.Background()

	first := seedMessage(t, s, "Exports hang forever", bugCls("Exports hang"))
	iss, _, err := m.Commit(ctx, first, bugCls("Exports hang"), []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := s.Issues().UpdateStatus(ctx, iss.IssueID, model.IssueResolved); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	again := seedMessage(t, s, "Exports hanging again", bugCls("Exports hang"))
	got, created, err := m.Commit(ctx, again, bugCls("Exports hang"), []float32{1, 0, 0})
	if err != nil || !created {
		t.Fatalf("expected fresh issue after resolve: created=%v err=%v", created, err)
	}
	if got.IssueID == iss.IssueID {
		t.Fatal("message attached to a resolved issue")
	}
}

func TestCommit_SummaryRefreshOnFifthMember(t *testing.T) {
	s := newTestStore(t)
	m := New(s, nil, 0.5, zerolog.Nop())
	ctx := context.Background()

	var issueID string
	for i := 1; i <= 5; i++ {
		summary := "Original summary"
		if i == 5 {
			summary = "Refreshed summary"
		}
		msg := seedMessage(t, s, fmt.Sprintf("report %d", i), bugCls(summary))
		iss, _, err := m.Commit(ctx, msg, bugCls(summary), []float32{1, 0.01 * float32(i), 0})
		if err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
		issueID = iss.IssueID

		got, err := s.Issues().Get(ctx, issueID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		want := "Original summary"
		if i == 5 {
			want = "Refreshed summary"
		}
		if got.Summary != want {
			t.Fatalf("after member %d summary = %q, want %q", i, got.Summary, want)
		}
	}
}

func TestCommit_EmptyEmbeddingRejected(t *testing.T) {
	s := newTestStore(t)
	m := New(s, nil, 0.78, zerolog.Nop())
	msg := seedMessage(t, s, "whatever", bugCls("x"))
	if _, _, err := m.Commit(context.Background(), msg, bugCls("x"), nil); err == nil {
		t.Fatal("expected error for empty embedding")
	}
}

func TestCommit_DimensionMismatchIsIntegrityError(t *testing.T) {
	s := newTestStore(t)
	m := New(s, nil, 0.78, zerolog.Nop())
	ctx := context.Background()

	first := seedMessage(t, s, "first", bugCls("first"))
	if _, _, err := m.Commit(ctx, first, bugCls("first"), []float32{1, 0, 0}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	second := seedMessage(t, s, "second", bugCls("second"))
	_, _, err := m.Commit(ctx, second, bugCls("second"), []float32{1, 0})
	if !errors.Is(err, model.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
}

func TestCosine(t *testing.T) {
	cases := []struct {
		a, b []float32
		want float64
	}{
		{[]float32{1, 0}, []float32{1, 0}, 1},
		{[]float32{1, 0}, []float32{0, 1}, 0},
		{[]float32{1, 0}, []float32{-1, 0}, -1},
		{[]float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tc := range cases {
		if got := cosine(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("cosine(%v,%v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestCentroid(t *testing.T) {
	rep := []float32{1, 0}
	got := centroid(rep, []float32{0, 1}, 1)
	if math.Abs(float64(got[0])-0.5) > 1e-6 || math.Abs(float64(got[1])-0.5) > 1e-6 {
		t.Fatalf("centroid = %v, want [0.5 0.5]", got)
	}

	// Folding three members one at a time equals their mean.
	c := []float32{3, 0}
	c = centroid(c, []float32{0, 3}, 1)
	c = centroid(c, []float32{3, 3}, 2)
	if math.Abs(float64(c[0])-2) > 1e-6 || math.Abs(float64(c[1])-2) > 1e-6 {
		t.Fatalf("running centroid = %v, want [2 2]", c)
	}
}

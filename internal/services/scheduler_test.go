package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/codequarry/codequarry-backend/internal/repos"
	"github.com/codequarry/codequarry-backend/internal/types"
)

type fakeIngest struct {
	mu      sync.Mutex
	runs    []string
	err     error
	started chan string
	release chan struct{}
}

func (f *fakeIngest) Run(ctx context.Context, language string, topic string) error {
	f.mu.Lock()
	f.runs = append(f.runs, language+"/"+topic)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- language + "/" + topic
	}
	if f.release != nil {
		<-f.release
	}
	return f.err
}

func (f *fakeIngest) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func newSchedulerHarness(t *testing.T, ingest IngestService) (*scheduler, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	log := testLog()
	s := NewScheduler(
		log,
		db,
		repos.NewLanguageRepo(db, log),
		repos.NewTopicRepo(db, log),
		ingest,
	).(*scheduler)
	return s, db
}

func (s *scheduler) queuedTopics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for e := s.queue.Front(); e != nil; e = e.Next() {
		j := e.Value.(*job)
		out = append(out, j.userID+":"+j.topic)
	}
	return out
}

func TestSubmitQueueSemantics(t *testing.T) {
	s, _ := newSchedulerHarness(t, &fakeIngest{})
	ctx := context.Background()

	res, err := s.Submit(ctx, "userA", "python", "loops")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res != SubmitEnqueued {
		t.Errorf("first submit = %q, want enqueued", res)
	}

	res, err = s.Submit(ctx, "userA", "python", "loops")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res != SubmitUnchanged {
		t.Errorf("identical resubmit = %q, want unchanged", res)
	}
	if got := s.queuedTopics(); len(got) != 1 {
		t.Errorf("queue = %v, want a single entry", got)
	}

	res, err = s.Submit(ctx, "userA", "python", "recursion")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res != SubmitReplaced {
		t.Errorf("different-topic resubmit = %q, want replaced", res)
	}
	if got := s.queuedTopics(); len(got) != 1 || got[0] != "userA:recursion" {
		t.Errorf("queue = %v, want only the replacement", got)
	}
}

func TestSubmitReplacementPreservesOtherUsersOrder(t *testing.T) {
	s, _ := newSchedulerHarness(t, &fakeIngest{})
	ctx := context.Background()

	for _, sub := range []struct{ user, topic string }{
		{"userA", "loops"},
		{"userB", "recursion"},
		{"userC", "arrays"},
	} {
		if _, err := s.Submit(ctx, sub.user, "python", sub.topic); err != nil {
			t.Fatalf("Submit %s: %v", sub.user, err)
		}
	}

	if _, err := s.Submit(ctx, "userB", "python", "closures"); err != nil {
		t.Fatalf("resubmit userB: %v", err)
	}

	got := s.queuedTopics()
	want := []string{"userA:loops", "userC:arrays", "userB:closures"}
	if len(got) != len(want) {
		t.Fatalf("queue = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("queue[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRunJobSetsCompletionFlags(t *testing.T) {
	ingest := &fakeIngest{}
	s, db := newSchedulerHarness(t, ingest)

	s.runJob(context.Background(), &job{userID: "userA", language: "python", topic: "loops"})

	if ingest.runCount() != 1 {
		t.Fatalf("ingest ran %d times, want 1", ingest.runCount())
	}

	var topic types.Topic
	if err := db.First(&topic).Error; err != nil {
		t.Fatalf("load topic: %v", err)
	}
	if !topic.IsFullyProcessed {
		t.Error("is_fully_processed must be true after a successful run")
	}
	if topic.IsProcessing {
		t.Error("is_processing must be cleared after a successful run")
	}
}

func TestRunJobSkipsFullyProcessedTopic(t *testing.T) {
	ingest := &fakeIngest{}
	s, db := newSchedulerHarness(t, ingest)

	// Complete the topic through another path first.
	s.runJob(context.Background(), &job{userID: "userA", language: "python", topic: "loops"})
	if ingest.runCount() != 1 {
		t.Fatalf("setup run count = %d", ingest.runCount())
	}

	s.runJob(context.Background(), &job{userID: "userB", language: "python", topic: "loops"})
	if ingest.runCount() != 1 {
		t.Errorf("ingest ran %d times, want 1 (second job must skip)", ingest.runCount())
	}

	var topic types.Topic
	if err := db.First(&topic).Error; err != nil {
		t.Fatalf("load topic: %v", err)
	}
	if !topic.IsFullyProcessed {
		t.Error("is_fully_processed must never regress")
	}
}

func TestRunJobFailureLeavesTopicRetryable(t *testing.T) {
	ingest := &fakeIngest{err: errFake}
	s, db := newSchedulerHarness(t, ingest)

	s.runJob(context.Background(), &job{userID: "userA", language: "python", topic: "loops"})

	var topic types.Topic
	if err := db.First(&topic).Error; err != nil {
		t.Fatalf("load topic: %v", err)
	}
	if topic.IsFullyProcessed {
		t.Error("is_fully_processed must stay false after a failed run")
	}
	if topic.IsProcessing {
		t.Error("is_processing must be cleared after a failed run")
	}

	// The topic stays eligible: a retry completes it.
	ingest.err = nil
	s.runJob(context.Background(), &job{userID: "userA", language: "python", topic: "loops"})
	if err := db.First(&topic).Error; err != nil {
		t.Fatalf("reload topic: %v", err)
	}
	if !topic.IsFullyProcessed {
		t.Error("retry after failure must complete the topic")
	}
}

func TestStartClearsStaleProcessing(t *testing.T) {
	s, db := newSchedulerHarness(t, &fakeIngest{})

	lang := types.Language{ID: uuid.New(), Name: "python"}
	if err := db.Create(&lang).Error; err != nil {
		t.Fatalf("seed language: %v", err)
	}
	topic := types.Topic{ID: uuid.New(), LanguageID: lang.ID, Name: "loops", IsProcessing: true}
	if err := db.Create(&topic).Error; err != nil {
		t.Fatalf("seed topic: %v", err)
	}

	s.Start()
	s.Start() // idempotent

	var reloaded types.Topic
	if err := db.First(&reloaded, "id = ?", topic.ID).Error; err != nil {
		t.Fatalf("reload topic: %v", err)
	}
	if reloaded.IsProcessing {
		t.Error("stale is_processing must be cleared on start")
	}
}

func TestStatusReportsProgress(t *testing.T) {
	s, db := newSchedulerHarness(t, &fakeIngest{})
	ctx := context.Background()

	if _, err := s.Status(ctx, "python", "loops"); err == nil {
		t.Fatal("status for an unknown topic must fail")
	}

	if _, err := s.Submit(ctx, "userA", "python", "loops"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	status, err := s.Status(ctx, "python", "loops")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.TotalVideos != 0 || status.CurrentVideos != 0 || status.IsFullyProcessed {
		t.Errorf("fresh topic status = %+v", status)
	}

	var topic types.Topic
	if err := db.First(&topic).Error; err != nil {
		t.Fatalf("load topic: %v", err)
	}
	if err := db.Model(&topic).Updates(map[string]interface{}{
		"total_videos":       3,
		"is_fully_processed": true,
	}).Error; err != nil {
		t.Fatalf("update topic: %v", err)
	}
	if err := db.Create(&types.Video{ID: uuid.New(), VideoID: "v1", Title: "v1", TopicID: &topic.ID}).Error; err != nil {
		t.Fatalf("seed video: %v", err)
	}

	status, err = s.Status(ctx, "python", "loops")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.TotalVideos != 3 || status.CurrentVideos != 1 || !status.IsFullyProcessed {
		t.Errorf("status = %+v, want {3 1 true}", status)
	}
}

// A job that has started running is no longer in the queued index, so the
// same user's resubmission enqueues fresh instead of collapsing.
func TestRunningJobIsNeverPreempted(t *testing.T) {
	ingest := &fakeIngest{
		started: make(chan string, 2),
		release: make(chan struct{}),
	}
	s, db := newSchedulerHarness(t, ingest)
	s.Start()

	if _, err := s.Submit(context.Background(), "userA", "python", "loops"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-ingest.started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never picked up the job")
	}

	res, err := s.Submit(context.Background(), "userA", "python", "loops")
	if err != nil {
		t.Fatalf("Submit while running: %v", err)
	}
	if res != SubmitEnqueued {
		t.Errorf("submit while running = %q, want enqueued (running job is not replaceable)", res)
	}

	close(ingest.release)

	// Both runs finish; the second skips because the topic completed.
	deadline := time.After(5 * time.Second)
	for {
		var topic types.Topic
		if err := db.First(&topic).Error; err == nil && topic.IsFullyProcessed && !topic.IsProcessing {
			return
		}
		select {
		case <-deadline:
			t.Fatal("topic never reached the completed state")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

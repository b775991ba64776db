package services

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/codequarry/codequarry-backend/internal/logger"
	"github.com/codequarry/codequarry-backend/internal/repos"
)

// SubmitResult tells the caller what happened to their submission.
type SubmitResult string

const (
	SubmitUnchanged SubmitResult = "unchanged"
	SubmitReplaced  SubmitResult = "replaced"
	SubmitEnqueued  SubmitResult = "enqueued"
)

// TopicStatus is the synchronous progress view for a (language, topic) pair.
type TopicStatus struct {
	TotalVideos      int   `json:"total_videos"`
	CurrentVideos    int64 `json:"current_videos"`
	IsFullyProcessed bool  `json:"is_fully_processed"`
}

// Scheduler serializes ingestion runs through a single background worker.
// Submissions from distinct users keep FIFO order; a user resubmitting while
// their previous job is still queued collapses to the latest topic choice. A
// job that has started running is never preempted.
type Scheduler interface {
	Start()
	Submit(ctx context.Context, userID string, language string, topic string) (SubmitResult, error)
	Status(ctx context.Context, language string, topic string) (*TopicStatus, error)
}

type job struct {
	userID   string
	language string
	topic    string
}

type scheduler struct {
	log          *logger.Logger
	db           *gorm.DB
	languageRepo repos.LanguageRepo
	topicRepo    repos.TopicRepo
	ingest       IngestService

	mu    sync.Mutex
	cond  *sync.Cond
	queue *list.List
	// queued holds each user's pending (not yet running) entry so resubmits
	// can collapse or replace it in O(1).
	queued map[string]*list.Element

	startOnce sync.Once
}

func NewScheduler(
	log *logger.Logger,
	db *gorm.DB,
	languageRepo repos.LanguageRepo,
	topicRepo repos.TopicRepo,
	ingest IngestService,
) Scheduler {
	s := &scheduler{
		log:          log.With("service", "Scheduler"),
		db:           db,
		languageRepo: languageRepo,
		topicRepo:    topicRepo,
		ingest:       ingest,
		queue:        list.New(),
		queued:       make(map[string]*list.Element),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start launches the worker exactly once per process. Stale is_processing
// flags from a prior crash are cleared first so those topics stay retryable.
func (s *scheduler) Start() {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.topicRepo.ClearStaleProcessing(ctx, nil); err != nil {
			s.log.Error("Failed to clear stale processing flags", "error", err)
		}
		go s.worker()
		s.log.Info("Scheduler worker started")
	})
}

func (s *scheduler) Submit(ctx context.Context, userID string, language string, topic string) (SubmitResult, error) {
	ctx = defaultCtx(ctx)
	if userID == "" || language == "" || topic == "" {
		return "", fmt.Errorf("userID, language and topic are all required")
	}

	// Rows are created up front so Status is answerable immediately.
	languageRow, err := s.languageRepo.GetOrCreate(ctx, nil, language)
	if err != nil {
		return "", fmt.Errorf("language get-or-create: %w", err)
	}
	if _, err := s.topicRepo.GetOrCreate(ctx, nil, languageRow.ID, topic); err != nil {
		return "", fmt.Errorf("topic get-or-create: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.queued[userID]; ok {
		pending := elem.Value.(*job)
		if pending.language == language && pending.topic == topic {
			return SubmitUnchanged, nil
		}
		// Replace in place is not enough: the new job goes to the back so
		// other users' entries keep their relative order ahead of it.
		s.queue.Remove(elem)
		s.queued[userID] = s.queue.PushBack(&job{userID: userID, language: language, topic: topic})
		s.cond.Signal()
		return SubmitReplaced, nil
	}

	s.queued[userID] = s.queue.PushBack(&job{userID: userID, language: language, topic: topic})
	s.cond.Signal()
	return SubmitEnqueued, nil
}

func (s *scheduler) Status(ctx context.Context, language string, topic string) (*TopicStatus, error) {
	ctx = defaultCtx(ctx)

	languageRow, err := s.languageRepo.GetByName(ctx, nil, language)
	if err != nil {
		return nil, fmt.Errorf("language lookup: %w", err)
	}
	topicRow, err := s.topicRepo.GetByName(ctx, nil, languageRow.ID, topic)
	if err != nil {
		return nil, fmt.Errorf("topic lookup: %w", err)
	}
	current, err := s.topicRepo.CountVideos(ctx, nil, topicRow.ID)
	if err != nil {
		return nil, fmt.Errorf("count videos: %w", err)
	}
	return &TopicStatus{
		TotalVideos:      topicRow.TotalVideos,
		CurrentVideos:    current,
		IsFullyProcessed: topicRow.IsFullyProcessed,
	}, nil
}

func (s *scheduler) worker() {
	for {
		s.mu.Lock()
		for s.queue.Len() == 0 {
			s.cond.Wait()
		}
		elem := s.queue.Front()
		s.queue.Remove(elem)
		next := elem.Value.(*job)
		// Dropping the index entry here is what makes a running job immune
		// to replacement.
		if s.queued[next.userID] == elem {
			delete(s.queued, next.userID)
		}
		s.mu.Unlock()

		s.runJob(context.Background(), next)
	}
}

// runJob wraps one orchestrator run in the topic's processing flags. Any
// failure clears is_processing only, leaving the topic eligible for retry.
func (s *scheduler) runJob(ctx context.Context, next *job) {
	log := s.log.With("user_id", next.userID, "language", next.language, "topic", next.topic)

	topicID, skip, err := s.claimTopic(ctx, next)
	if err != nil {
		log.Error("Failed to claim topic", "error", err)
		return
	}
	if skip {
		log.Info("Topic already fully processed, skipping")
		return
	}

	log.Info("Ingestion run starting")
	runErr := s.ingest.Run(ctx, next.language, next.topic)
	if runErr != nil {
		log.Error("Ingestion run failed", "error", runErr)
		if err := s.topicRepo.UpdateFields(ctx, nil, topicID, map[string]interface{}{
			"is_processing": false,
		}); err != nil {
			log.Error("Failed to clear processing flag", "error", err)
		}
		return
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		topicRow, err := s.topicRepo.GetForUpdate(ctx, tx, topicID)
		if err != nil {
			return err
		}
		return s.topicRepo.UpdateFields(ctx, tx, topicRow.ID, map[string]interface{}{
			"is_fully_processed": true,
			"is_processing":      false,
		})
	})
	if err != nil {
		log.Error("Failed to finalize topic", "error", err)
		return
	}
	log.Info("Ingestion run finished")
}

// claimTopic atomically re-checks is_fully_processed and sets is_processing
// under a row lock. skip is true when another path already completed the
// topic while the job sat in the queue.
func (s *scheduler) claimTopic(ctx context.Context, next *job) (topicID uuid.UUID, skip bool, err error) {
	languageRow, err := s.languageRepo.GetOrCreate(ctx, nil, next.language)
	if err != nil {
		return topicID, false, fmt.Errorf("language get-or-create: %w", err)
	}
	topicRow, err := s.topicRepo.GetOrCreate(ctx, nil, languageRow.ID, next.topic)
	if err != nil {
		return topicID, false, fmt.Errorf("topic get-or-create: %w", err)
	}
	topicID = topicRow.ID

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.topicRepo.GetForUpdate(ctx, tx, topicID)
		if err != nil {
			return err
		}
		if locked.IsFullyProcessed {
			skip = true
			return nil
		}
		return s.topicRepo.UpdateFields(ctx, tx, topicID, map[string]interface{}{
			"is_processing": true,
		})
	})
	return topicID, skip, err
}

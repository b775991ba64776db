package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codequarry/codequarry-backend/internal/logger"
	"github.com/codequarry/codequarry-backend/internal/repos"
	"github.com/codequarry/codequarry-backend/internal/types"
)

// QuestionService turns a transcript into a fixed-shape set of three coding
// questions, chunking transcripts that exceed the token threshold into
// context-only turns with a single generation turn at the end.
type QuestionService interface {
	Generate(ctx context.Context, transcript string, videoID string) error
}

const (
	chunkTokenThreshold = 5000
	chunkWindowTokens   = 5000

	rateLimitAttempts = 3
	rateLimitBaseWait = 10 * time.Second
)

type questionService struct {
	log          *logger.Logger
	questionRepo repos.QuestionRepo
	videoRepo    repos.VideoRepo
	llm          LLMClient
	codec        TokenCodec
	sleep        func(time.Duration)
}

func NewQuestionService(
	log *logger.Logger,
	questionRepo repos.QuestionRepo,
	videoRepo repos.VideoRepo,
	llm LLMClient,
	codec TokenCodec,
) QuestionService {
	return &questionService{
		log:          log.With("service", "QuestionService"),
		questionRepo: questionRepo,
		videoRepo:    videoRepo,
		llm:          llm,
		codec:        codec,
		sleep:        time.Sleep,
	}
}

func (q *questionService) Generate(ctx context.Context, transcript string, videoID string) error {
	ctx = defaultCtx(ctx)

	exists, err := q.questionRepo.ExistsByExternalVideoID(ctx, nil, videoID)
	if err != nil {
		return fmt.Errorf("question existence check: %w", err)
	}
	if exists {
		q.log.Info("Questions already exist, skipping generation", "video_id", videoID)
		return nil
	}

	video, err := q.videoRepo.GetByVideoID(ctx, nil, videoID)
	if err != nil {
		return fmt.Errorf("video lookup for %s: %w", videoID, err)
	}

	totalTokens := q.codec.Count(transcript)
	q.log.Info("Generating questions", "video_id", videoID, "tokens", totalTokens)

	var output string
	if totalTokens <= chunkTokenThreshold {
		output, err = q.generateSingle(ctx, transcript)
	} else {
		output, err = q.generateChunked(ctx, transcript)
	}
	if err != nil {
		return err
	}

	if !looksLikeQuestionSet(output) {
		// Raw output is still persisted; the generation is never discarded.
		q.log.Warn("Model output does not match the question template, saving raw text", "video_id", videoID)
	}

	if _, err := q.questionRepo.Create(ctx, nil, &types.Question{
		ID:        uuid.New(),
		VideoID:   video.ID,
		Questions: output,
	}); err != nil {
		return fmt.Errorf("question create: %w", err)
	}
	q.log.Info("Saved questions", "video_id", videoID)
	return nil
}

func (q *questionService) generateSingle(ctx context.Context, transcript string) (string, error) {
	prompt := finalChunkPrompt(transcript, 1, 1)
	return q.completeWithBackoff(ctx, prompt, 0.7, 800)
}

func (q *questionService) generateChunked(ctx context.Context, transcript string) (string, error) {
	tokens := q.codec.Encode(transcript)

	var chunks []string
	for start := 0; start < len(tokens); start += chunkWindowTokens {
		end := start + chunkWindowTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, q.codec.Decode(tokens[start:end]))
	}

	var final string
	for i, chunk := range chunks {
		isLast := i == len(chunks)-1

		var prompt string
		if isLast {
			prompt = finalChunkPrompt(chunk, i+1, len(chunks))
		} else {
			prompt = contextChunkPrompt(chunk, i+1, len(chunks))
		}

		reply, err := q.completeWithBackoff(ctx, prompt, 0.2, 800)
		if err != nil {
			return "", fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if isLast {
			final = reply
		}
		q.log.Info("Processed transcript chunk", "part", i+1, "total", len(chunks))
	}
	return final, nil
}

// completeWithBackoff retries rate-limited calls with a doubling delay. Any
// other failure aborts immediately.
func (q *questionService) completeWithBackoff(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	messages := []ChatMessage{{Role: "user", Content: prompt}}

	wait := rateLimitBaseWait
	var lastErr error
	for attempt := 1; attempt <= rateLimitAttempts; attempt++ {
		reply, err := q.llm.Complete(ctx, messages, temperature, maxTokens)
		if err == nil {
			return reply, nil
		}
		if !IsRateLimit(err) {
			return "", err
		}
		lastErr = err
		if attempt < rateLimitAttempts {
			q.log.Warn("Rate limited, backing off", "attempt", attempt, "wait", wait.String())
			q.sleep(wait)
			wait *= 2
		}
	}
	return "", fmt.Errorf("rate limit persisted after %d attempts: %w", rateLimitAttempts, lastErr)
}

func looksLikeQuestionSet(output string) bool {
	if !strings.Contains(output, "Difficulty:") {
		return false
	}
	return strings.Count(output, "--- Question") >= 3
}

func contextChunkPrompt(chunk string, part int, total int) string {
	return fmt.Sprintf(`You are a coding question generator.
This transcript is being sent in PARTS. You are now reading PART %d of %d.

Transcript Part %d:
%s

Do NOT generate questions yet. Just store this context in memory for the next parts.`,
		part, total, part, chunk)
}

func finalChunkPrompt(chunk string, part int, total int) string {
	return fmt.Sprintf(`You are a coding question generator.

You have now received the FINAL Part (%d/%d) of the transcript.
Use ALL transcript parts to generate exactly **three** coding questions.

**Output MUST be in CLEAN PLAIN TEXT format** (NO JSON, NO BRACKETS, NO CURLY BRACES):

Difficulty: <Beginner/Intermediate/Advanced>

--- Question 1 ---
Title: Q1
Description: [Full question description here]
Input Format: [Describe input format]
Output Format: [Describe output format]
Example Input: [Example input value]
Example Output: [Example output value]

--- Question 2 ---
Title: Q2
Description: [Full question description here]
Input Format: [Describe input format]
Output Format: [Describe output format]
Example Input: [Example input value]
Example Output: [Example output value]

--- Question 3 ---
Title: Q3
Description: [Full question description here]
Input Format: [Describe input format]
Output Format: [Describe output format]
Example Input: [Example input value]
Example Output: [Example output value]

RULES:
- NO JSON FORMATTING (no { }, no [ ], no commas)
- NO code snippets in descriptions
- NO additional explanations or commentary
- Use clear section headers with --- separators
- Each field must be on its own line
- Only include the 3 questions with the exact format above

Transcript (Final Part):
%s`,
		part, total, chunk)
}

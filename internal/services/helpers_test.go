package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/codequarry/codequarry-backend/internal/logger"
	"github.com/codequarry/codequarry-backend/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&types.Language{},
		&types.Topic{},
		&types.Video{},
		&types.Transcript{},
		&types.Question{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testLog() *logger.Logger {
	return logger.NewNop()
}

type llmCall struct {
	messages    []ChatMessage
	temperature float64
	maxTokens   int
}

type fakeLLM struct {
	mu      sync.Mutex
	calls   []llmCall
	respond func(call int, messages []ChatMessage) (string, error)
}

func (f *fakeLLM) Complete(ctx context.Context, messages []ChatMessage, temperature float64, maxTokens int) (string, error) {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, llmCall{messages: messages, temperature: temperature, maxTokens: maxTokens})
	f.mu.Unlock()
	return f.respond(n, messages)
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSearch struct {
	mu      sync.Mutex
	queries []string
	respond func(query string, maxResults int) ([]VideoCandidate, error)
}

func (f *fakeSearch) Search(ctx context.Context, query string, maxResults int) ([]VideoCandidate, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	return f.respond(query, maxResults)
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	fail  bool
	audio string
}

func (f *fakeFetcher) DownloadAudio(ctx context.Context, videoURL string, outPath string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail {
		return errFake
	}
	content := f.audio
	if content == "" {
		content = "audio"
	}
	return os.WriteFile(outPath, []byte(content), 0o644)
}

type fakeAudio struct {
	failTrim  bool
	failSplit bool
}

func (f *fakeAudio) Trim(ctx context.Context, inPath, outPath string, seconds int) error {
	if f.failTrim {
		return errFake
	}
	return os.WriteFile(outPath, []byte("clip"), 0o644)
}

func (f *fakeAudio) SplitInTwo(ctx context.Context, inPath string) ([]string, error) {
	if f.failSplit {
		return nil, errFake
	}
	ext := filepath.Ext(inPath)
	base := strings.TrimSuffix(inPath, ext)
	parts := []string{base + "_part1" + ext, base + "_part2" + ext}
	for _, p := range parts {
		if err := os.WriteFile(p, []byte("half"), 0o644); err != nil {
			return nil, err
		}
	}
	return parts, nil
}

type fakeSpeech struct {
	mu    sync.Mutex
	calls int
	text  string
	fail  bool
}

func (f *fakeSpeech) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail {
		return "", errFake
	}
	return f.text, nil
}

type runnerCall struct {
	name string
	args []string
}

type fakeRunner struct {
	mu      sync.Mutex
	calls   []runnerCall
	respond func(call int, name string, args []string) ([]byte, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, runnerCall{name: name, args: args})
	f.mu.Unlock()
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(n, name, args)
}

// wordCodec treats each whitespace-separated word as one token, which makes
// chunk boundaries easy to pin down in tests.
type wordCodec struct{}

func (wordCodec) Count(text string) int { return len(strings.Fields(text)) }

func (wordCodec) Encode(text string) []int {
	words := strings.Fields(text)
	tokens := make([]int, len(words))
	for i := range words {
		tokens[i] = i
	}
	return tokens
}

func (wordCodec) Decode(tokens []int) string {
	parts := make([]string, len(tokens))
	for i := range tokens {
		parts[i] = "w"
	}
	return strings.Join(parts, " ")
}

var errFake = &fakeError{"simulated failure"}

type fakeError struct{ msg string }

func (e *fakeError) Error() string { return e.msg }

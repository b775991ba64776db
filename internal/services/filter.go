package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/codequarry/codequarry-backend/internal/logger"
	"github.com/codequarry/codequarry-backend/internal/utils"
)

// RelevanceFilter classifies candidate videos for a (language, topic) pair in
// three escalating-cost stages: metadata matching, transcript analysis, and
// AI-assisted keyword re-search. A video promoted at any stage is accepted.
type RelevanceFilter interface {
	Filter(ctx context.Context, videos []VideoCandidate, language string, topic string) []VideoCandidate
}

const (
	metadataWorkers = 3
	clipSeconds     = 300
	expansionMax    = 8
)

type relevanceFilter struct {
	log     *logger.Logger
	llm     LLMClient
	search  VideoSearch
	fetcher MediaFetcher
	audio   AudioTools
	speech  SpeechToText
	workDir string
}

func NewRelevanceFilter(
	log *logger.Logger,
	llm LLMClient,
	search VideoSearch,
	fetcher MediaFetcher,
	audio AudioTools,
	speech SpeechToText,
) RelevanceFilter {
	return &relevanceFilter{
		log:     log.With("service", "RelevanceFilter"),
		llm:     llm,
		search:  search,
		fetcher: fetcher,
		audio:   audio,
		speech:  speech,
		workDir: utils.GetEnv("MEDIA_WORK_DIR", os.TempDir(), nil),
	}
}

func (f *relevanceFilter) Filter(ctx context.Context, videos []VideoCandidate, language string, topic string) []VideoCandidate {
	ctx = defaultCtx(ctx)

	langNorm := NormalizeLanguage(language)
	variants := TopicVariants(topic)

	var mu sync.Mutex
	var passed, failed []VideoCandidate

	f.log.Info("Stage 1: metadata filtering", "candidates", len(videos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(metadataWorkers)
	for _, video := range videos {
		video := video
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if matchesMetadata(video, langNorm, variants) {
				mu.Lock()
				passed = append(passed, video)
				mu.Unlock()
				f.log.Info("Metadata passed", "title", video.Title)
			} else {
				mu.Lock()
				failed = append(failed, video)
				mu.Unlock()
				f.log.Info("Metadata failed", "title", video.Title)
			}
			return nil
		})
	}
	_ = g.Wait()

	f.log.Info("Metadata results", "passed", len(passed), "failed", len(failed))

	// Stage 2 and 3 are expensive (download, transcription, repeated
	// searches), so failed videos are processed one at a time.
	for _, video := range failed {
		if f.checkTranscript(ctx, video, langNorm, topic) {
			passed = append(passed, video)
			f.log.Info("Transcript analysis passed", "title", video.Title)
			continue
		}
		if f.tryKeywordExpansion(ctx, langNorm, topic) {
			passed = append(passed, video)
			f.log.Info("Keyword expansion passed", "title", video.Title)
			continue
		}
		f.log.Info("All stages failed", "title", video.Title)
	}

	f.log.Info("Filter finished", "accepted", len(passed))
	return passed
}

// NormalizeLanguage lowercases the language term and maps "cpp" to the "c++"
// spelling used in video metadata.
func NormalizeLanguage(language string) string {
	lower := strings.ToLower(strings.TrimSpace(language))
	if lower == "cpp" {
		return "c++"
	}
	return lower
}

// TopicVariants returns the lowered topic plus its depluralized,
// qualifier-stripped and space-collapsed forms.
func TopicVariants(topic string) []string {
	lower := strings.ToLower(strings.TrimSpace(topic))
	return []string{
		lower,
		strings.TrimRight(lower, "s"),
		strings.ReplaceAll(lower, "basic ", ""),
		strings.ReplaceAll(lower, " ", ""),
	}
}

func matchesMetadata(video VideoCandidate, langNorm string, variants []string) bool {
	containsAny := func(text string) bool {
		for _, v := range variants {
			if v != "" && strings.Contains(text, v) {
				return true
			}
		}
		return false
	}

	title := strings.ToLower(video.Title)
	if strings.Contains(title, langNorm) && containsAny(title) {
		return true
	}
	description := strings.ToLower(video.Description)
	if strings.Contains(description, langNorm) && containsAny(description) {
		return true
	}
	for _, tag := range video.Tags {
		lowered := strings.ToLower(tag)
		if strings.Contains(lowered, langNorm) && containsAny(lowered) {
			return true
		}
	}
	return false
}

// checkTranscript downloads a short clip, transcribes it and asks the model a
// strict yes/no about the transcript, then (only on "no") about the metadata
// alone. Errors are treated as a failed check so the next stage still runs.
func (f *relevanceFilter) checkTranscript(ctx context.Context, video VideoCandidate, langNorm string, topic string) bool {
	fullPath := filepath.Join(f.workDir, "full_audio_"+video.VideoID+".mp3")
	clipPath := filepath.Join(f.workDir, "short_audio_"+video.VideoID+".mp3")
	defer os.Remove(fullPath)
	defer os.Remove(clipPath)

	if err := f.fetcher.DownloadAudio(ctx, video.URL, fullPath); err != nil {
		f.log.Warn("Clip download failed", "title", video.Title, "error", err)
		return false
	}
	if err := f.audio.Trim(ctx, fullPath, clipPath, clipSeconds); err != nil {
		f.log.Warn("Clip trim failed", "title", video.Title, "error", err)
		return false
	}

	transcript, err := f.speech.Transcribe(ctx, clipPath)
	if err != nil {
		f.log.Warn("Clip transcription failed", "title", video.Title, "error", err)
		return false
	}
	if strings.TrimSpace(transcript) == "" {
		return false
	}

	if f.askYesNo(ctx, transcriptPrompt(transcript, langNorm, topic)) {
		return true
	}
	return f.askYesNo(ctx, metadataPrompt(video, langNorm, topic))
}

func (f *relevanceFilter) askYesNo(ctx context.Context, prompt string) bool {
	reply, err := f.llm.Complete(ctx, []ChatMessage{{Role: "user", Content: prompt}}, 0, 10)
	if err != nil {
		f.log.Warn("Relevance check call failed", "error", err)
		return false
	}
	return strings.Contains(strings.ToLower(reply), "true")
}

func transcriptPrompt(transcript string, language string, topic string) string {
	return fmt.Sprintf(`Analyze this programming video transcript and determine if it explicitly discusses BOTH:
1. Programming Language: %s
2. Topic: %s

Requirements:
- Both must be explicitly mentioned or clearly discussed
- Look for actual content, not just passing references
- Focus on tutorial/educational content about these topics

Transcript:
%s

Respond with exactly "true" if both are properly covered, otherwise "false".`,
		language, topic, truncate(transcript, 6000))
}

func metadataPrompt(video VideoCandidate, language string, topic string) string {
	tags := "None"
	if len(video.Tags) > 0 {
		limited := video.Tags
		if len(limited) > 15 {
			limited = limited[:15]
		}
		tags = strings.Join(limited, ", ")
	}
	return fmt.Sprintf(`Analyze this video metadata and determine if the video is relevant to:
- Programming in %s
- Topic: %s

Consider:
- Direct matches for "%s" in %s
- Related concepts and subtopics
- Practical examples and tutorials
- Overall programming context

Video Metadata:
Title: %s
Description: %s
Tags: %s

Respond with exactly "true" if relevant, otherwise "false".`,
		language, topic, topic, language, video.Title, truncate(video.Description, 800), tags)
}

// tryKeywordExpansion asks the model for alternative search phrases and
// re-queries the video search with each one; any result whose metadata
// mentions the topic or an expansion phrase promotes the original video.
func (f *relevanceFilter) tryKeywordExpansion(ctx context.Context, langNorm string, topic string) bool {
	topicNorm := strings.ToLower(strings.TrimSpace(topic))

	keywords, err := f.expandKeywords(ctx, langNorm, topicNorm)
	if err != nil {
		f.log.Warn("Keyword expansion failed", "topic", topicNorm, "error", err)
		return false
	}
	f.log.Info("Generated expanded keywords", "count", len(keywords), "keywords", keywords)

	for _, term := range keywords {
		results, err := f.search.Search(ctx, langNorm+" "+term, 5)
		if err != nil {
			f.log.Warn("Expansion search failed", "term", term, "error", err)
			continue
		}
		for _, result := range results {
			title := strings.ToLower(result.Title)
			description := strings.ToLower(result.Description)

			if strings.Contains(title, topicNorm) || strings.Contains(description, topicNorm) {
				return true
			}
			for _, kw := range keywords {
				if strings.Contains(title, strings.ToLower(kw)) {
					return true
				}
			}
		}
	}
	return false
}

func (f *relevanceFilter) expandKeywords(ctx context.Context, language string, topic string) ([]string, error) {
	prompt := fmt.Sprintf(`Generate 5-8 specific YouTube search phrases for programming tutorials about "%s" in %s. Focus on practical tutorial content.

Requirements:
- Include beginner and advanced terms
- Include common mistakes and solutions
- Include specific syntax and examples
- Return as JSON array only

Example for "Python recursion":
["recursion in python tutorial", "python recursive function examples",
"python recursion for beginners", "how recursion works python",
"python recursion practice problems"]`, topic, language)

	reply, err := f.llm.Complete(ctx, []ChatMessage{{Role: "user", Content: prompt}}, 0.5, 200)
	if err != nil {
		return nil, err
	}
	keywords := parseKeywordList(reply)

	if !containsString(keywords, topic) {
		keywords = append(keywords, topic)
	}
	if !containsString(keywords, language) {
		keywords = append(keywords, language)
	}
	if len(keywords) > expansionMax {
		keywords = keywords[:expansionMax]
	}
	return keywords, nil
}

// parseKeywordList extracts a JSON string array from a model reply, falling
// back to line-splitting when the reply isn't valid JSON.
func parseKeywordList(reply string) []string {
	text := strings.TrimSpace(reply)
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	if start := strings.Index(text, "["); start >= 0 {
		if end := strings.Index(text, "]"); end > start {
			text = text[start : end+1]
		}
	}

	var keywords []string
	if err := json.Unmarshal([]byte(text), &keywords); err == nil {
		return keywords
	}

	var fallback []string
	for _, line := range strings.Split(text, "\n") {
		cleaned := strings.Trim(line, "-•* ,\"' \t")
		if cleaned == "" || strings.HasPrefix(cleaned, "[") || strings.HasPrefix(cleaned, "]") {
			continue
		}
		fallback = append(fallback, cleaned)
	}
	return fallback
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}

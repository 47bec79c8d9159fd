// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/pdiddy/entity-eval/internal/normalize"
	"github.com/pdiddy/entity-eval/pkg/types"
)

// --- mock extractors ---

// scriptedExtractor returns one scripted reply per attempt and records the
// requests it saw. Attempts past the script repeat the last reply.
type scriptedExtractor struct {
	replies []reply
	seen    []Request
}

type reply struct {
	text string
	err  error
}

func (s *scriptedExtractor) Extract(_ context.Context, req Request) (string, error) {
	s.seen = append(s.seen, req)
	r := s.replies[len(s.replies)-1]
	if len(s.seen) <= len(s.replies) {
		r = s.replies[len(s.seen)-1]
	}
	return r.text, r.err
}

// blockingExtractor waits for its context to end.
type blockingExtractor struct{ calls int }

func (b *blockingExtractor) Extract(ctx context.Context, _ Request) (string, error) {
	b.calls++
	<-ctx.Done()
	return "", ctx.Err()
}

func TestMain(m *testing.M) {
	// Override backoff to avoid real sleeps in retry tests.
	backoffBase = time.Millisecond
	backoffMax = 4 * time.Millisecond
	os.Exit(m.Run())
}

func testCase() *types.Case {
	return &types.Case{
		ID: "7",
		MissingPerson: []types.Record{{
			"misperid":      "7",
			"reportid":      "101",
			"circumstances": "Seen at the train station in Aviemore.",
		}},
	}
}

func locationsNormalizer() normalize.Normalizer {
	return normalize.New(false, "nearby", "other")
}

// --- Driver ---

func TestDriverFirstAttempt(t *testing.T) {
	ext := &scriptedExtractor{replies: []reply{{text: "train station,101\nAviemore,101"}}}
	dir := t.TempDir()
	d := NewDriver(ext, types.RetryConfig{}, dir, nil)

	set, err := d.Run(context.Background(), testCase(), types.CategoryLocations, locationsNormalizer())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if set.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", set.Attempts)
	}
	if got := strings.Join(set.Items.Sorted(), "|"); got != "aviemore|train station" {
		t.Errorf("items = %q", got)
	}
	if ext.seen[0].Temperature != 0.1 {
		t.Errorf("first temperature = %v, want 0.1", ext.seen[0].Temperature)
	}
	if !strings.Contains(ext.seen[0].Text, "Seen at the train station") {
		t.Errorf("request text missing narrative: %q", ext.seen[0].Text)
	}

	data, err := os.ReadFile(ArtifactPath(dir, "7", types.CategoryLocations))
	if err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	if string(data) != "train station,101\nAviemore,101" {
		t.Errorf("artifact = %q", data)
	}
}

func TestDriverRetriesUntilUsable(t *testing.T) {
	ext := &scriptedExtractor{replies: []reply{
		{text: "\"\",101"},
		{err: errors.New("upstream 500")},
		{text: ",,,"},
		{text: ""},
		{text: "train station,101"},
	}}
	d := NewDriver(ext, types.RetryConfig{}, "", nil)

	set, err := d.Run(context.Background(), testCase(), types.CategoryLocations, locationsNormalizer())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if set.Attempts != 5 {
		t.Errorf("Attempts = %d, want 5", set.Attempts)
	}
	if set.Exhausted {
		t.Error("set should not be exhausted")
	}
	if !set.Items.Has("train station") || set.Len() != 1 {
		t.Errorf("items = %v, want attempt 5 output", set.Items.Sorted())
	}

	want := []float64{0.1, 0.2, 0.3, 0.4, 0.5}
	for i, req := range ext.seen {
		if req.Temperature != want[i] {
			t.Errorf("attempt %d temperature = %v, want %v", i+1, req.Temperature, want[i])
		}
		if req.Attempt != i+1 {
			t.Errorf("attempt %d numbered %d", i+1, req.Attempt)
		}
	}
}

func TestDriverTemperatureCapped(t *testing.T) {
	ext := &scriptedExtractor{replies: []reply{{text: ""}}}
	d := NewDriver(ext, types.RetryConfig{}, "", nil)

	if _, err := d.Run(context.Background(), testCase(), types.CategoryLocations, locationsNormalizer()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, req := range ext.seen {
		if req.Temperature > 0.5 {
			t.Errorf("attempt %d temperature %v exceeds cap", req.Attempt, req.Temperature)
		}
	}
	if last := ext.seen[len(ext.seen)-1].Temperature; last != 0.5 {
		t.Errorf("last temperature = %v, want 0.5", last)
	}
}

func TestDriverExhausted(t *testing.T) {
	ext := &scriptedExtractor{replies: []reply{{err: errors.New("unavailable")}}}
	d := NewDriver(ext, types.RetryConfig{}, "", nil)

	set, err := d.Run(context.Background(), testCase(), types.CategoryLocations, locationsNormalizer())
	if err != nil {
		t.Fatalf("exhaustion should not be an error: %v", err)
	}
	if set.Len() != 0 {
		t.Errorf("exhausted set has %d items", set.Len())
	}
	if set.Attempts != 10 {
		t.Errorf("Attempts = %d, want 10", set.Attempts)
	}
	if !set.Exhausted {
		t.Error("set should be marked exhausted")
	}
	if len(ext.seen) != 10 {
		t.Errorf("extractor called %d times, want 10", len(ext.seen))
	}
}

func TestDriverCustomAttemptBudget(t *testing.T) {
	ext := &scriptedExtractor{replies: []reply{{text: ""}}}
	d := NewDriver(ext, types.RetryConfig{MaxAttempts: 3}, "", nil)

	set, err := d.Run(context.Background(), testCase(), types.CategoryLocations, locationsNormalizer())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if set.Attempts != 3 || len(ext.seen) != 3 {
		t.Errorf("Attempts = %d, calls = %d, want 3", set.Attempts, len(ext.seen))
	}
}

func TestDriverPermanentError(t *testing.T) {
	ext := &scriptedExtractor{replies: []reply{{err: Permanent(errors.New("no artifact"))}}}
	d := NewDriver(ext, types.RetryConfig{}, "", nil)

	_, err := d.Run(context.Background(), testCase(), types.CategoryLocations, locationsNormalizer())
	if !IsPermanent(err) {
		t.Fatalf("err = %v, want permanent", err)
	}
	if len(ext.seen) != 1 {
		t.Errorf("extractor called %d times, want 1", len(ext.seen))
	}
}

func TestDriverAttemptTimeout(t *testing.T) {
	ext := &blockingExtractor{}
	d := NewDriver(ext, types.RetryConfig{MaxAttempts: 2, AttemptTimeout: 5 * time.Millisecond}, "", nil)

	set, err := d.Run(context.Background(), testCase(), types.CategoryLocations, locationsNormalizer())
	if err != nil {
		t.Fatalf("timeouts should be retried, got %v", err)
	}
	if !set.Exhausted || ext.calls != 2 {
		t.Errorf("Exhausted = %v, calls = %d", set.Exhausted, ext.calls)
	}
}

func TestDriverContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	d := NewDriver(&blockingExtractor{}, types.RetryConfig{}, "", nil)
	_, err := d.Run(ctx, testCase(), types.CategoryLocations, locationsNormalizer())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestDriverUnknownCategory(t *testing.T) {
	d := NewDriver(&scriptedExtractor{replies: []reply{{text: "x"}}}, types.RetryConfig{}, "", nil)
	if _, err := d.Run(context.Background(), testCase(), "vehicles", locationsNormalizer()); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		k    int
		want time.Duration
	}{
		{2, time.Millisecond},
		{3, 2 * time.Millisecond},
		{4, 4 * time.Millisecond},
		{5, 4 * time.Millisecond},
		{60, 4 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := backoff(tt.k); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.k, got, tt.want)
		}
	}
}

func TestOutcomeKindString(t *testing.T) {
	for kind, want := range map[OutcomeKind]string{Extracted: "extracted", Retry: "retry", Exhausted: "exhausted"} {
		if kind.String() != want {
			t.Errorf("String() = %q, want %q", kind.String(), want)
		}
	}
}

// --- ArtifactExtractor ---

func TestArtifactExtractorReplays(t *testing.T) {
	dir := t.TempDir()
	if err := writeArtifact(ArtifactPath(dir, "7", types.CategoryLocations), "Aviemore,101\n"); err != nil {
		t.Fatal(err)
	}

	d := NewDriver(&ArtifactExtractor{Dir: dir}, types.RetryConfig{MaxAttempts: 1}, "", nil)
	set, err := d.Run(context.Background(), testCase(), types.CategoryLocations, locationsNormalizer())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !set.Items.Has("aviemore") {
		t.Errorf("items = %v", set.Items.Sorted())
	}
}

func TestArtifactExtractorMissing(t *testing.T) {
	a := &ArtifactExtractor{Dir: t.TempDir()}
	_, err := a.Extract(context.Background(), Request{Case: testCase(), Category: types.CategoryPeople})
	if !IsPermanent(err) {
		t.Errorf("err = %v, want permanent", err)
	}
}

// --- prompts ---

func TestRenderPrompt(t *testing.T) {
	for _, cat := range types.AllCategories() {
		prompt, err := renderPrompt(cat, "REPORT: 101:\nCircumstances: Seen in Aviemore.")
		if err != nil {
			t.Fatalf("renderPrompt(%s): %v", cat, err)
		}
		if !strings.Contains(prompt, "Seen in Aviemore.") {
			t.Errorf("%s prompt missing case text", cat)
		}
	}
	if _, err := renderPrompt("vehicles", ""); err == nil {
		t.Error("expected error for unknown category")
	}
}

// --- OpenAIExtractor ---

func TestOpenAIExtractor(t *testing.T) {
	var got openai.ChatCompletionRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: "assistant", Content: "\nAviemore,101\n"},
			}},
		})
	}))
	defer ts.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = ts.URL
	o := NewOpenAIExtractor(openai.NewClientWithConfig(cfg), types.AIConfig{Model: "test-model"}, nil)

	out, err := o.Extract(context.Background(), Request{
		Case: testCase(), Category: types.CategoryLocations, Text: "Seen in Aviemore.", Temperature: 0.3,
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if out != "Aviemore,101" {
		t.Errorf("reply = %q", out)
	}
	if got.Model != "test-model" {
		t.Errorf("model = %q", got.Model)
	}
	if fmt.Sprintf("%.1f", got.Temperature) != "0.3" {
		t.Errorf("temperature = %v, want 0.3", got.Temperature)
	}
	if got.MaxTokens != defaultMaxTokens {
		t.Errorf("max tokens = %d", got.MaxTokens)
	}
	if len(got.Messages) != 2 || !strings.Contains(got.Messages[1].Content, "location,report_id") {
		t.Errorf("unexpected messages: %+v", got.Messages)
	}
}

func TestOpenAIExtractorNoChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer ts.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = ts.URL
	o := NewOpenAIExtractor(openai.NewClientWithConfig(cfg), types.AIConfig{}, nil)

	if _, err := o.Extract(context.Background(), Request{Case: testCase(), Category: types.CategoryPatterns}); err == nil {
		t.Error("expected error for empty choices")
	}
}

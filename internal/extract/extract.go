// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract drives an extraction collaborator until it yields a
// usable entity set for one case and category.
package extract

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/entity-eval/internal/artifact"
	"github.com/pdiddy/entity-eval/internal/normalize"
	"github.com/pdiddy/entity-eval/internal/records"
	"github.com/pdiddy/entity-eval/pkg/types"
)

// Extractor abstracts the model call so tests can supply a mock. Each call
// returns the raw artifact text for one case and category.
type Extractor interface {
	Extract(ctx context.Context, req Request) (string, error)
}

// Request is the input of one extraction attempt.
type Request struct {
	Case     *types.Case
	Category types.Category

	// Text is the serialised case narrative sent to the model.
	Text string

	Temperature float64
	Attempt     int
}

// OutcomeKind tags the result of one attempt.
type OutcomeKind int

const (
	Extracted OutcomeKind = iota
	Retry
	Exhausted
)

func (k OutcomeKind) String() string {
	switch k {
	case Extracted:
		return "extracted"
	case Retry:
		return "retry"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of one attempt. Set is non-empty when Kind is
// Extracted.
type Outcome struct {
	Kind    OutcomeKind
	Set     *types.ExtractedSet
	Err     error
	Skipped []artifact.LineError
}

// errEmptyExtraction marks an attempt whose artifact parsed to no items.
var errEmptyExtraction = errors.New("artifact contains no entities")

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the driver stops retrying and returns it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped by Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// backoffBase and backoffMax bound the wait between attempts. Tests
// override them to avoid real sleeps.
var (
	backoffBase = time.Second
	backoffMax  = 30 * time.Second
)

// backoff returns the wait before attempt k (k >= 2).
func backoff(k int) time.Duration {
	d := time.Duration(math.Pow(2, float64(k-2))) * backoffBase
	if d > backoffMax || d <= 0 {
		return backoffMax
	}
	return d
}

// ArtifactPath returns where the artifact of one case and category lives.
func ArtifactPath(dir, caseID string, cat types.Category) string {
	return filepath.Join(dir, caseID, string(cat)+".txt")
}

// Driver retries an Extractor with rising temperature until an attempt
// parses to a non-empty set or the attempt budget runs out.
type Driver struct {
	extractor    Extractor
	retry        types.RetryConfig
	artifactsDir string
	log          *zap.Logger
}

// NewDriver returns a Driver. Each attempt's artifact is written under
// artifactsDir; an empty artifactsDir disables writing.
func NewDriver(e Extractor, retry types.RetryConfig, artifactsDir string, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{
		extractor:    e,
		retry:        retry.WithDefaults(),
		artifactsDir: artifactsDir,
		log:          log,
	}
}

// Run extracts the entities of category cat from case c. Items are
// canonicalised with n. The returned set records the number of attempts
// used; when every attempt fails it is empty and marked exhausted. Context
// cancellation and permanent extractor errors abort the run.
func (d *Driver) Run(ctx context.Context, c *types.Case, cat types.Category, n normalize.Normalizer) (*types.ExtractedSet, error) {
	schema, err := artifact.SchemaFor(cat)
	if err != nil {
		return nil, err
	}

	req := Request{
		Case:        c,
		Category:    cat,
		Text:        records.NarrativeText(c),
		Temperature: d.retry.InitialTemperature,
	}
	log := d.log.With(zap.String("case", c.ID), zap.String("category", string(cat)))

	for k := 1; ; k++ {
		if k > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff(k)):
			}
		}

		req.Attempt = k
		out := d.attempt(ctx, req, schema, n)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if out.Kind == Extracted {
			out.Set.Attempts = k
			log.Debug("extraction succeeded",
				zap.Int("attempt", k),
				zap.Float64("temperature", req.Temperature),
				zap.Int("items", out.Set.Len()))
			return out.Set, nil
		}
		if IsPermanent(out.Err) {
			return nil, fmt.Errorf("extracting %s for case %s: %w", cat, c.ID, out.Err)
		}

		log.Info("extraction attempt failed",
			zap.Stringer("outcome", out.Kind),
			zap.Int("attempt", k),
			zap.Float64("temperature", req.Temperature),
			zap.Int("skipped_lines", len(out.Skipped)),
			zap.Error(out.Err))

		if k >= d.retry.MaxAttempts {
			set := types.NewExtractedSet()
			set.Attempts = k
			set.Exhausted = true
			set.SkippedLines = len(out.Skipped)
			log.Warn("extraction failed on every attempt",
				zap.Stringer("outcome", Exhausted),
				zap.Int("attempts", k))
			return set, nil
		}

		req.Temperature = nextTemperature(req.Temperature, d.retry.TemperatureStep, d.retry.MaxTemperature)
	}
}

// nextTemperature raises t by step up to limit, rounded to two decimals so
// repeated float addition does not drift.
func nextTemperature(t, step, limit float64) float64 {
	return math.Min(math.Round((t+step)*100)/100, limit)
}

// attempt runs one extractor call under the per-attempt timeout, writes
// the artifact and parses it.
func (d *Driver) attempt(ctx context.Context, req Request, schema artifact.Schema, n normalize.Normalizer) Outcome {
	actx, cancel := context.WithTimeout(ctx, d.retry.AttemptTimeout)
	defer cancel()

	raw, err := d.extractor.Extract(actx, req)
	if err != nil {
		return Outcome{Kind: Retry, Err: err}
	}

	if d.artifactsDir != "" {
		if err := writeArtifact(ArtifactPath(d.artifactsDir, req.Case.ID, req.Category), raw); err != nil {
			return Outcome{Kind: Retry, Err: err}
		}
	}

	set, skipped := artifact.Parse(raw, schema, n)
	for _, le := range skipped {
		d.log.Debug("skipped artifact line",
			zap.String("case", req.Case.ID),
			zap.Int("line", le.Line),
			zap.String("reason", le.Reason))
	}
	if set.Len() == 0 {
		return Outcome{Kind: Retry, Err: errEmptyExtraction, Skipped: skipped}
	}
	return Outcome{Kind: Extracted, Set: set, Skipped: skipped}
}

func writeArtifact(path, raw string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		return fmt.Errorf("writing artifact %s: %w", path, err)
	}
	return nil
}

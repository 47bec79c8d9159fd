// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ArtifactExtractor replays artifacts already written under Dir so an
// evaluation can be recomputed without calling the model.
type ArtifactExtractor struct {
	Dir string
}

// Extract returns the stored artifact of the request's case and category.
// A missing artifact is a permanent error.
func (a *ArtifactExtractor) Extract(_ context.Context, req Request) (string, error) {
	path := ArtifactPath(a.Dir, req.Case.ID, req.Category)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", Permanent(fmt.Errorf("no artifact at %s", path))
		}
		return "", fmt.Errorf("reading artifact %s: %w", path, err)
	}
	return string(data), nil
}

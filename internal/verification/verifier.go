// Package verification holds the collaborator contracts the task pipeline
// invokes on the verify transition: an artifact verifier, a publisher, and a
// permission gate.
package verification

import (
	"context"
	"fmt"
	"strings"

	"swarmgov/internal/logging"
)

// Result is a verification verdict. Detail carries the human-readable cause
// on failure.
type Result struct {
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Runner verifies a produced artifact. A returned error is treated by the
// pipeline exactly like a failed result.
type Runner interface {
	Run(ctx context.Context, artifact string) (Result, error)
}

// Violation names one class of artifact defect.
type Violation string

const (
	EmptyArtifact      Violation = "empty_artifact"
	PlaceholderContent Violation = "placeholder_content"
	MissingStructure   Violation = "missing_structure"
	TruncatedContent   Violation = "truncated_content"
)

// placeholderMarkers are substrings that betray stubbed or failed content
// masquerading as a finished artifact.
var placeholderMarkers = []string{
	"TODO",
	"FIXME",
	"lorem ipsum",
	"placeholder",
	"not implemented",
	"[Error retrieving",
}

// ArtifactVerifier scans governance artifacts for structural completeness
// and stub content. It is deterministic and runs no external tooling.
type ArtifactVerifier struct {
	// requiredSections must each appear as a "## <name>" header.
	requiredSections []string
	minLength        int
	log              *logging.Logger
}

// NewArtifactVerifier creates a verifier requiring the given section headers.
func NewArtifactVerifier(requiredSections ...string) *ArtifactVerifier {
	return &ArtifactVerifier{
		requiredSections: requiredSections,
		minLength:        40,
		log:              logging.Get(logging.CategoryPipeline),
	}
}

// Run scans the artifact and reports the first class of violation found.
func (v *ArtifactVerifier) Run(ctx context.Context, artifact string) (Result, error) {
	trimmed := strings.TrimSpace(artifact)
	if trimmed == "" {
		return fail(EmptyArtifact, "artifact is empty"), nil
	}
	if len(trimmed) < v.minLength {
		return fail(TruncatedContent, fmt.Sprintf("artifact is %d characters, below the %d minimum", len(trimmed), v.minLength)), nil
	}

	lower := strings.ToLower(trimmed)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return fail(PlaceholderContent, fmt.Sprintf("artifact contains stub marker %q", marker)), nil
		}
	}

	for _, section := range v.requiredSections {
		if !strings.Contains(trimmed, "## "+section) {
			return fail(MissingStructure, fmt.Sprintf("artifact is missing the %q section", section)), nil
		}
	}

	v.log.Debug("artifact passed verification (%d characters)", len(trimmed))
	return Result{Passed: true, Detail: "all checks passed"}, nil
}

func fail(v Violation, detail string) Result {
	return Result{Passed: false, Detail: fmt.Sprintf("%s: %s", v, detail)}
}

// Package pipeline drives one task session through the plan, execute,
// verify, refine loop. Each Run call performs exactly one state transition
// and always returns a user-readable string; errors inside a step leave the
// state resumable instead of propagating.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"swarmgov/internal/config"
	"swarmgov/internal/cwa"
	"swarmgov/internal/llm"
	"swarmgov/internal/logging"
	"swarmgov/internal/verification"
)

// Step is a pipeline state.
type Step string

const (
	StepPlan    Step = "plan"
	StepExecute Step = "execute"
	StepVerify  Step = "verify"
	StepRefine  Step = "refine"
)

// TaskState is the persisted position of one task session. Artifact holds
// the output of the execute step until verify consumes it.
type TaskState struct {
	Step                Step     `json:"step"`
	PreviousPlans       []string `json:"previous_plans"`
	VerificationResults []string `json:"verification_results"`
	Artifact            string   `json:"artifact,omitempty"`
}

// Transition records one Run call for observability.
type Transition struct {
	From    Step          `json:"from"`
	To      Step          `json:"to"`
	Success bool          `json:"success"`
	Latency time.Duration `json:"latency"`
	Detail  string        `json:"detail"`
	At      time.Time     `json:"at"`
}

// WindowBuilder assembles the prompt for each step. *cwa.Builder satisfies
// it.
type WindowBuilder interface {
	Build(ctx context.Context, userQuery string, data cwa.ContextData) string
}

// DataFunc supplies the shared context material for a build. The pipeline
// fills in its own task state before each call.
type DataFunc func() cwa.ContextData

// Pipeline is the state machine for one task session. Callers serialize Run
// for a given session; the mutex protects state reads racing a transition.
type Pipeline struct {
	mu      sync.Mutex
	state   TaskState
	history []Transition

	cfg       config.PipelineConfig
	window    WindowBuilder
	generator llm.Client
	verifier  verification.Runner
	publisher verification.Publisher
	data      DataFunc

	// artifactSections must appear as "## <name>" headers in execute output.
	artifactSections []string

	log *logging.Logger
}

// Option configures a pipeline at construction.
type Option func(*Pipeline)

// WithArtifactSections sets the section headers the execute step requires in
// a generated artifact.
func WithArtifactSections(sections ...string) Option {
	return func(p *Pipeline) { p.artifactSections = sections }
}

// New creates a pipeline in the plan state.
func New(cfg config.PipelineConfig, window WindowBuilder, generator llm.Client,
	verifier verification.Runner, publisher verification.Publisher, data DataFunc, opts ...Option) *Pipeline {

	p := &Pipeline{
		state:            TaskState{Step: StepPlan},
		cfg:              cfg,
		window:           window,
		generator:        generator,
		verifier:         verifier,
		publisher:        publisher,
		data:             data,
		artifactSections: []string{"Objective"},
		log:              logging.Get(logging.CategoryPipeline),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns a copy of the task state.
func (p *Pipeline) State() TaskState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateCopy()
}

// Restore overwrites the task state, resuming a persisted session.
func (p *Pipeline) Restore(s TaskState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.Step == "" {
		s.Step = StepPlan
	}
	p.state = TaskState{
		Step:                s.Step,
		PreviousPlans:       append([]string{}, s.PreviousPlans...),
		VerificationResults: append([]string{}, s.VerificationResults...),
		Artifact:            s.Artifact,
	}
}

// History returns a copy of the recorded transitions.
func (p *Pipeline) History() []Transition {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Transition{}, p.history...)
}

// Run performs one state transition. It never returns an error: failures
// are logged under a correlation id and reported in the returned string,
// with the state left where it was so the next call can retry the step.
func (p *Pipeline) Run(ctx context.Context, userQuery string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	runID := uuid.New().String()
	log := p.log.With("run_id", runID)
	start := time.Now()
	from := p.state.Step

	data := cwa.ContextData{}
	if p.data != nil {
		data = p.data()
	}
	data.TaskState = p.stateCopy()

	prompt := p.window.Build(ctx, userQuery, data)

	var msg string
	var err error
	switch from {
	case StepPlan:
		msg, err = p.runPlan(ctx, prompt)
	case StepExecute:
		msg, err = p.runExecute(ctx, prompt)
	case StepVerify:
		msg, err = p.runVerify(ctx)
	case StepRefine:
		msg, err = p.runRefine(ctx, prompt)
	default:
		err = fmt.Errorf("unrecognized step %q", from)
	}

	latency := time.Since(start)
	if err != nil {
		msg = fmt.Sprintf("%s step failed: %v", from, err)
		log.Warn("%s (latency %s)", msg, latency)
	} else {
		log.Info("%s -> %s: %s (latency %s)", from, p.state.Step, msg, latency)
	}

	p.history = append(p.history, Transition{
		From:    from,
		To:      p.state.Step,
		Success: err == nil,
		Latency: latency,
		Detail:  msg,
		At:      start.UTC(),
	})
	return msg
}

// runPlan generates a plan, retrying on short output, then advances to
// execute.
func (p *Pipeline) runPlan(ctx context.Context, prompt string) (string, error) {
	plan, err := p.generateValid(ctx, prompt, p.planValid)
	if err != nil {
		return "", fmt.Errorf("generate plan: %w", err)
	}

	p.state.PreviousPlans = append(p.state.PreviousPlans, plan)
	p.state.Step = StepExecute
	return fmt.Sprintf("plan %d recorded, moving to execute", len(p.state.PreviousPlans)), nil
}

// runExecute generates the implementation artifact and checks its structural
// markers before advancing to verify.
func (p *Pipeline) runExecute(ctx context.Context, prompt string) (string, error) {
	instruction := fmt.Sprintf("%s\n\nProduce the governance artifact now. It must contain the sections: %s, each as a \"## <name>\" header.",
		prompt, strings.Join(p.artifactSections, ", "))

	artifact, err := p.generateValid(ctx, instruction, p.artifactValid)
	if err != nil {
		return "", fmt.Errorf("generate artifact: %w", err)
	}

	p.state.Artifact = artifact
	p.state.Step = StepVerify
	return "artifact produced, moving to verify", nil
}

// runVerify invokes the verification collaborator. A pass publishes the
// artifact and restarts the loop at plan; a failure, including a verifier
// error, records the detail and routes to refine.
func (p *Pipeline) runVerify(ctx context.Context) (string, error) {
	result, err := p.verifier.Run(ctx, p.state.Artifact)
	if err != nil {
		result = verification.Result{Passed: false, Detail: fmt.Sprintf("verifier error: %v", err)}
	}

	if !result.Passed {
		p.state.VerificationResults = append(p.state.VerificationResults, result.Detail)
		p.state.Step = StepRefine
		return fmt.Sprintf("verification failed (%s), moving to refine", result.Detail), nil
	}

	url, err := p.publisher.Publish(ctx, p.state.Artifact)
	if err != nil {
		// Verification passed but the publish collaborator failed. Stay in
		// verify so the next call retries the publish, not the whole cycle.
		return "", fmt.Errorf("publish artifact: %w", err)
	}

	p.state.Artifact = ""
	p.state.Step = StepPlan
	return fmt.Sprintf("verification passed, artifact published at %s, restarting at plan", url), nil
}

// runRefine replans with the most recent failure detail included, then
// advances to execute.
func (p *Pipeline) runRefine(ctx context.Context, prompt string) (string, error) {
	feedback := ""
	if n := len(p.state.VerificationResults); n > 0 {
		feedback = p.state.VerificationResults[n-1]
	}

	instruction := fmt.Sprintf("%s\n\nThe previous artifact failed verification: %s\nRevise the plan to address this.", prompt, feedback)
	plan, err := p.generateValid(ctx, instruction, p.planValid)
	if err != nil {
		return "", fmt.Errorf("generate refined plan: %w", err)
	}

	p.state.PreviousPlans = append(p.state.PreviousPlans, plan)
	p.state.Step = StepExecute
	return "refined plan recorded, moving to execute", nil
}

// generateValid calls the generator with bounded retries until the output
// passes the validity policy.
func (p *Pipeline) generateValid(ctx context.Context, prompt string, valid func(string) error) (string, error) {
	attempts := p.cfg.GenerationRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := p.generator.Complete(ctx, prompt)
		if err == nil {
			if err = valid(out); err == nil {
				return out, nil
			}
		}
		lastErr = err

		if attempt < attempts && p.cfg.GenerationBackoff > 0 {
			select {
			case <-time.After(p.cfg.GenerationBackoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

func (p *Pipeline) planValid(out string) error {
	trimmed := strings.TrimSpace(out)
	if len(trimmed) < p.cfg.MinPlanLength {
		return fmt.Errorf("plan is %d characters, below the %d minimum", len(trimmed), p.cfg.MinPlanLength)
	}
	return nil
}

func (p *Pipeline) artifactValid(out string) error {
	for _, section := range p.artifactSections {
		if !strings.Contains(out, "## "+section) {
			return fmt.Errorf("artifact is missing the %q section", section)
		}
	}
	return nil
}

// stateCopy returns a deep copy. Caller holds the lock.
func (p *Pipeline) stateCopy() TaskState {
	return TaskState{
		Step:                p.state.Step,
		PreviousPlans:       append([]string{}, p.state.PreviousPlans...),
		VerificationResults: append([]string{}, p.state.VerificationResults...),
		Artifact:            p.state.Artifact,
	}
}

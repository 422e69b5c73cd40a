// Package orchestrator is the top-level façade: it owns the agent set, the
// DAO, the trust graph, and the task pipeline, and routes named tasks to the
// right component. It never reaches into agent or DAO internals; every
// mutation goes through their public operations.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"swarmgov/internal/agent"
	"swarmgov/internal/config"
	"swarmgov/internal/cwa"
	"swarmgov/internal/dao"
	"swarmgov/internal/llm"
	"swarmgov/internal/logging"
	"swarmgov/internal/pipeline"
	"swarmgov/internal/trust"
	"swarmgov/internal/types"
	"swarmgov/internal/verification"
)

const instructions = "You are a governance assistant for a cooperative of role-specialized agents. " +
	"Ground every answer in the provided DAO state, trust entries, and task state. " +
	"Be precise about metrics and never invent ledger values."

// Saver is the persistence surface the orchestrator uses. *store.Store
// satisfies it.
type Saver interface {
	Save(key string, value interface{}) error
	Load(key string, out interface{}) error
	AppendTrustEntries(entries []trust.Entry) error
	LoadTrustEntries() ([]trust.Entry, error)
}

// Orchestrator routes tasks and owns the session pipeline. The mutex guards
// the agent registry; each agent serializes its own ledger mutations.
type Orchestrator struct {
	mu     sync.RWMutex
	agents map[string]*agent.Agent

	dao      *dao.DAO
	graph    *trust.Graph
	pipeline *pipeline.Pipeline
	store    Saver
	gate     verification.Gate

	cfg *config.Config
	log *logging.Logger
}

// New wires an orchestrator from its collaborators. The generator drives
// both pipeline generation and CWA fallback (through the baseline profile);
// store may be nil for purely in-memory sessions.
func New(cfg *config.Config, generator, baseline llm.Client, st Saver, gate verification.Gate) *Orchestrator {
	if gate == nil {
		gate = verification.AllowAll()
	}

	o := &Orchestrator{
		agents: make(map[string]*agent.Agent),
		dao:    dao.New(nil),
		graph:  trust.NewGraph(),
		store:  st,
		gate:   gate,
		cfg:    cfg,
		log:    logging.Get(logging.CategoryOrchestrator),
	}

	builder := cwa.NewBuilder(cfg.Window, baseline, cwa.DefaultLayers(instructions))
	var saver verification.Saver
	if st != nil {
		saver = st
	}
	o.pipeline = pipeline.New(cfg.Pipeline, builder, generator,
		verification.NewArtifactVerifier("Objective"),
		&verification.LogPublisher{Store: saver},
		o.contextData,
	)
	return o
}

// contextData assembles the shared material for a context window build.
func (o *Orchestrator) contextData() cwa.ContextData {
	snapshot := o.dao.Snapshot()
	return cwa.ContextData{
		DAO:       &snapshot,
		Trust:     o.graph.Entries(),
		Knowledge: o.knowledge(),
	}
}

// knowledge summarizes agent standing as curated context lines.
func (o *Orchestrator) knowledge() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ids := make([]string, 0, len(o.agents))
	for id := range o.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []string
	for _, id := range ids {
		a := o.agents[id]
		out = append(out, fmt.Sprintf("%s (%s): reputation %.0f, escrow %.0f, %d experiments",
			id, a.Role(), a.Reputation(), a.EscrowLocked(), len(a.Experiments())))
	}
	return out
}

// AddAgent registers a new agent in the cooperative.
func (o *Orchestrator) AddAgent(id string, role types.Role, goals types.Metrics) (*agent.Agent, error) {
	a, err := agent.New(id, role, goals, o.cfg.Ledger)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.agents[id]; exists {
		return nil, fmt.Errorf("%w: agent %q already registered", types.ErrInvalidBlueprint, id)
	}
	o.agents[id] = a
	o.log.Info("agent %s registered as %s", id, role)
	return a, nil
}

// Agent returns a registered agent.
func (o *Orchestrator) Agent(id string) (*agent.Agent, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	a, ok := o.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownAgent, id)
	}
	return a, nil
}

// DAO exposes the stakeholder registry and proposal book.
func (o *Orchestrator) DAO() *dao.DAO { return o.dao }

// TrustGraph exposes the audit chain.
func (o *Orchestrator) TrustGraph() *trust.Graph { return o.graph }

// RunTask routes a validated request to the component responsible for it.
// Unrecognized task names fail with UnknownTask; mutating tasks pass the
// write gate first.
func (o *Orchestrator) RunTask(ctx context.Context, req types.TaskRequest) (interface{}, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", types.ErrUnknownTask)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := o.gate.Check(verification.ModeWrite); err != nil {
		return nil, err
	}

	switch r := req.(type) {
	case types.ProposeRequest:
		return o.runPropose(r)
	case types.AssessRiskRequest:
		return o.runAssessRisk(r)
	case types.DraftProposalRequest:
		return o.runDraftProposal(r)
	case types.NormUpdateRequest:
		return o.runNormUpdate(r)
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownTask, req.Task())
	}
}

func (o *Orchestrator) runPropose(req types.ProposeRequest) (interface{}, error) {
	a, err := o.Agent(req.AgentID)
	if err != nil {
		return nil, err
	}

	out, err := a.ExecuteTask(agent.TaskInput{Request: req})
	if err != nil {
		return nil, err
	}

	exp := out.(types.Experiment)
	if _, err := o.graph.Record(req.AgentID, "propose_experiment", exp); err != nil {
		return nil, err
	}
	return exp, nil
}

func (o *Orchestrator) runAssessRisk(req types.AssessRiskRequest) (interface{}, error) {
	assessor, err := o.Agent(req.AgentID)
	if err != nil {
		return nil, err
	}
	target, err := o.Agent(req.TargetAgent)
	if err != nil {
		return nil, err
	}

	exp, err := target.Experiment(req.ExperimentID)
	if err != nil {
		return nil, err
	}

	out, err := assessor.ExecuteTask(agent.TaskInput{Request: req, TargetExperiment: &exp})
	if err != nil {
		return nil, err
	}

	if _, err := o.graph.Record(req.AgentID, "assess_risk", out); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Orchestrator) runDraftProposal(req types.DraftProposalRequest) (interface{}, error) {
	a, err := o.Agent(req.AgentID)
	if err != nil {
		return nil, err
	}

	out, err := a.ExecuteTask(agent.TaskInput{Request: req})
	if err != nil {
		return nil, err
	}

	if _, err := o.graph.Record(req.AgentID, "draft_proposal", out); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Orchestrator) runNormUpdate(req types.NormUpdateRequest) (interface{}, error) {
	if _, err := o.Agent(req.TargetAgent); err != nil {
		return nil, err
	}

	p, err := o.dao.ProposeNormUpdate(req.ProposerID, req.TargetAgent, req.NewMetric, req.Description)
	if err != nil {
		return nil, err
	}

	if _, err := o.graph.Record(req.ProposerID, "propose_norm_update", p); err != nil {
		return nil, err
	}
	return p, nil
}

// Vote casts a stakeholder vote. When the vote resolves the proposal as
// accepted, the norm update is applied to the target agent's goals.
func (o *Orchestrator) Vote(proposalID, stakeholder string, support bool) (dao.Proposal, error) {
	if err := o.gate.Check(verification.ModeWrite); err != nil {
		return dao.Proposal{}, err
	}

	p, err := o.dao.VoteOnProposal(proposalID, stakeholder, support)
	if err != nil {
		return dao.Proposal{}, err
	}

	if p.Status == dao.StatusAccepted {
		a, err := o.Agent(p.TargetAgent)
		if err != nil {
			return dao.Proposal{}, fmt.Errorf("apply norm update: %w", err)
		}
		a.SetGoals(p.NewMetric.ApplyTo(a.Goals()))
		if _, err := o.graph.Record(p.TargetAgent, "apply_norm_update", p); err != nil {
			return dao.Proposal{}, err
		}
		o.log.Info("norm update %s applied to %s", p.ID, p.TargetAgent)
	}
	return p, nil
}

// Attest records an agent's actual outcome for an experiment and chains the
// attestation.
func (o *Orchestrator) Attest(agentID string, experimentID int, actual types.Metrics) (types.Attestation, error) {
	if err := o.gate.Check(verification.ModeWrite); err != nil {
		return types.Attestation{}, err
	}

	a, err := o.Agent(agentID)
	if err != nil {
		return types.Attestation{}, err
	}

	att, err := a.SubmitAttestation(experimentID, actual)
	if err != nil {
		return types.Attestation{}, err
	}

	if _, err := o.graph.Record(agentID, "submit_attestation", att); err != nil {
		return types.Attestation{}, err
	}
	return att, nil
}

// Remediate applies corrective metrics to an agent's experiment.
func (o *Orchestrator) Remediate(agentID string, experimentID int, newMetrics types.Metrics) error {
	if err := o.gate.Check(verification.ModeWrite); err != nil {
		return err
	}

	a, err := o.Agent(agentID)
	if err != nil {
		return err
	}
	if err := a.Remediate(experimentID, newMetrics); err != nil {
		return err
	}

	_, err = o.graph.Record(agentID, "remediate_experiment", map[string]interface{}{
		"experiment_id": experimentID,
		"metrics":       newMetrics,
	})
	return err
}

// CorroborationRequest names one experiment to check against sensor data.
type CorroborationRequest struct {
	AgentID      string
	ExperimentID int
	Sensor       types.Metrics
}

// Corroborate evaluates experiments against sensor data concurrently, then
// applies the verification consequences to each owning agent's ledger. The
// graph serializes its own appends; ledger mutation stays on the caller's
// goroutine per agent.
func (o *Orchestrator) Corroborate(ctx context.Context, reqs []CorroborationRequest) ([]trust.Evaluation, error) {
	if err := o.gate.Check(verification.ModeWrite); err != nil {
		return nil, err
	}

	evals := make([]trust.Evaluation, len(reqs))
	g, ctx := errgroup.WithContext(ctx)

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a, err := o.Agent(req.AgentID)
			if err != nil {
				return err
			}
			eval, err := o.graph.EvaluateExperiment(a, req.ExperimentID, req.Sensor)
			if err != nil {
				return fmt.Errorf("corroborate %s/%d: %w", req.AgentID, req.ExperimentID, err)
			}
			evals[i] = eval
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, req := range reqs {
		a, err := o.Agent(req.AgentID)
		if err != nil {
			return nil, err
		}
		a.VerifyExperiment(req.ExperimentID, req.Sensor)
	}
	return evals, nil
}

// RunPipeline advances the task session by one transition.
func (o *Orchestrator) RunPipeline(ctx context.Context, userQuery string) string {
	return o.pipeline.Run(ctx, userQuery)
}

// Pipeline exposes the task session state machine.
func (o *Orchestrator) Pipeline() *pipeline.Pipeline { return o.pipeline }

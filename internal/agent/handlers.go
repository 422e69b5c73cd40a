package agent

import (
	"fmt"
	"strings"

	"swarmgov/internal/types"
)

// TaskInput wraps a validated request together with any context the
// orchestrator resolved for the handler, such as another agent's experiment
// for a risk assessment.
type TaskInput struct {
	Request          types.TaskRequest
	TargetExperiment *types.Experiment
}

// RoleHandler executes the task family an agent's role is responsible for.
// Handlers are stateless; all ledger mutation goes through the agent.
type RoleHandler interface {
	Role() types.Role
	Execute(a *Agent, input TaskInput) (interface{}, error)
}

func handlerFor(role types.Role) (RoleHandler, error) {
	switch role {
	case types.RoleProposal:
		return &ProposalHandler{}, nil
	case types.RoleRisk:
		return &RiskHandler{}, nil
	case types.RoleGrant:
		return &GrantHandler{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownRole, role)
	}
}

// ExecuteTask validates the request and dispatches it to the agent's role
// handler.
func (a *Agent) ExecuteTask(input TaskInput) (interface{}, error) {
	if input.Request == nil {
		return nil, fmt.Errorf("%w: nil request", types.ErrInvalidBlueprint)
	}
	if err := input.Request.Validate(); err != nil {
		return nil, err
	}
	return a.handler.Execute(a, input)
}

// ProposalHandler serves the propose task by recording new experiments on
// the agent's ledger.
type ProposalHandler struct{}

func (h *ProposalHandler) Role() types.Role { return types.RoleProposal }

func (h *ProposalHandler) Execute(a *Agent, input TaskInput) (interface{}, error) {
	req, ok := input.Request.(types.ProposeRequest)
	if !ok {
		return nil, fmt.Errorf("%w: proposal agent cannot handle %q", types.ErrUnknownTask, input.Request.Task())
	}
	return a.ProposeExperiment(req.Description, req.ProjectedMetrics, req.HighRisk)
}

// RiskAssessment is the risk handler's verdict on an experiment.
type RiskAssessment struct {
	ExperimentID int            `json:"experiment_id"`
	Band         types.RiskBand `json:"band"`
	Score        float64        `json:"score"`
	Factors      []string       `json:"factors"`
	Summary      string         `json:"summary"`
}

// RiskHandler serves assessRisk: it scores another agent's experiment
// against the assessor's own goals. Over-ambitious projections lower the
// score; every flagged factor is named so the verdict is auditable.
type RiskHandler struct{}

func (h *RiskHandler) Role() types.Role { return types.RoleRisk }

func (h *RiskHandler) Execute(a *Agent, input TaskInput) (interface{}, error) {
	req, ok := input.Request.(types.AssessRiskRequest)
	if !ok {
		return nil, fmt.Errorf("%w: risk agent cannot handle %q", types.ErrUnknownTask, input.Request.Task())
	}
	if input.TargetExperiment == nil {
		return nil, fmt.Errorf("%w: no experiment resolved for agent %q", types.ErrExperimentNotFound, req.TargetAgent)
	}

	exp := input.TargetExperiment
	goals := a.Goals()

	score := 100.0
	var factors []string

	if exp.RiskBand == types.RiskHigh {
		score -= 30
		factors = append(factors, "declared high risk")
	}
	if !exp.AuditCommitted && exp.RiskBand == types.RiskHigh {
		score -= 15
		factors = append(factors, "high risk without audit commitment")
	}
	for _, f := range ambitionFactors(exp.ProjectedMetrics, goals) {
		score -= 10
		factors = append(factors, f)
	}
	if score < 5 {
		score = 5
	}

	band := types.RiskNormal
	if score < 50 || exp.RiskBand == types.RiskHigh {
		band = types.RiskHigh
	}

	return RiskAssessment{
		ExperimentID: exp.ID,
		Band:         band,
		Score:        score,
		Factors:      factors,
		Summary:      fmt.Sprintf("experiment %d scored %.0f/100 (%s) with %d flagged factors", exp.ID, score, band, len(factors)),
	}, nil
}

// ambitionFactors flags projected metrics that exceed double the assessor's
// goal for that dimension. Zero goals are skipped.
func ambitionFactors(projected, goals types.Metrics) []string {
	var out []string
	if goals.Financial > 0 && projected.Financial > 2*goals.Financial {
		out = append(out, "financial projection exceeds twice the goal")
	}
	if goals.Ecological > 0 && projected.Ecological > 2*goals.Ecological {
		out = append(out, "ecological projection exceeds twice the goal")
	}
	if goals.Social > 0 && projected.Social > 2*goals.Social {
		out = append(out, "social projection exceeds twice the goal")
	}
	return out
}

// GrantDraft is the grant handler's structured funding proposal.
type GrantDraft struct {
	Title    string   `json:"title"`
	Amount   float64  `json:"amount"`
	Purpose  string   `json:"purpose"`
	Sections []string `json:"sections"`
	Body     string   `json:"body"`
}

// GrantHandler serves draftProposal by assembling a funding draft from the
// request and the agent's current standing.
type GrantHandler struct{}

func (h *GrantHandler) Role() types.Role { return types.RoleGrant }

func (h *GrantHandler) Execute(a *Agent, input TaskInput) (interface{}, error) {
	req, ok := input.Request.(types.DraftProposalRequest)
	if !ok {
		return nil, fmt.Errorf("%w: grant agent cannot handle %q", types.ErrUnknownTask, input.Request.Task())
	}

	current := a.CurrentMetrics()
	sections := []string{"Objective", "Budget", "Impact", "Track Record"}

	var body strings.Builder
	fmt.Fprintf(&body, "## Objective\n%s\n\n", req.Purpose)
	fmt.Fprintf(&body, "## Budget\nRequested amount: %.2f\n\n", req.Amount)
	fmt.Fprintf(&body, "## Impact\nProjected contribution toward goals fin=%.1f eco=%.1f soc=%.1f\n\n",
		a.Goals().Financial, a.Goals().Ecological, a.Goals().Social)
	fmt.Fprintf(&body, "## Track Record\nDelivered to date: fin=%.1f eco=%.1f soc=%.1f at reputation %.0f\n",
		current.Financial, current.Ecological, current.Social, a.Reputation())

	return GrantDraft{
		Title:    req.Title,
		Amount:   req.Amount,
		Purpose:  req.Purpose,
		Sections: sections,
		Body:     body.String(),
	}, nil
}

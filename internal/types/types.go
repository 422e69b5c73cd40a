// Package types defines the shared domain model for swarmgov: outcome
// metrics, experiments, attestations, and the typed task requests accepted
// by the orchestrator.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Domain errors. Callers match these with errors.Is; operations wrap them
// with fmt.Errorf("%w") to add detail.
var (
	ErrInvalidBlueprint   = errors.New("invalid blueprint")
	ErrExperimentNotFound = errors.New("experiment not found")
	ErrUnknownProposal    = errors.New("unknown proposal")
	ErrUnknownStakeholder = errors.New("unknown stakeholder")
	ErrUnknownTask        = errors.New("unknown task")
	ErrUnknownRole        = errors.New("unknown role")
	ErrUnknownAgent       = errors.New("unknown agent")
	ErrPermissionDenied   = errors.New("permission denied")
)

// Metrics is the three-axis outcome tuple used everywhere in the system:
// projected experiment outcomes, attested results, agent goals, and DAO norm
// updates all speak in these units.
type Metrics struct {
	Financial  float64 `json:"financial"`
	Ecological float64 `json:"ecological"`
	Social     float64 `json:"social"`
}

// AllPositive reports whether every axis is strictly greater than zero.
func (m Metrics) AllPositive() bool {
	return m.Financial > 0 && m.Ecological > 0 && m.Social > 0
}

// Add returns the element-wise sum.
func (m Metrics) Add(other Metrics) Metrics {
	return Metrics{
		Financial:  m.Financial + other.Financial,
		Ecological: m.Ecological + other.Ecological,
		Social:     m.Social + other.Social,
	}
}

// Sub returns the element-wise difference m - other.
func (m Metrics) Sub(other Metrics) Metrics {
	return Metrics{
		Financial:  m.Financial - other.Financial,
		Ecological: m.Ecological - other.Ecological,
		Social:     m.Social - other.Social,
	}
}

// PartialMetrics carries an update to a subset of the metric axes. Nil fields
// leave the corresponding goal untouched.
type PartialMetrics struct {
	Financial  *float64 `json:"financial,omitempty"`
	Ecological *float64 `json:"ecological,omitempty"`
	Social     *float64 `json:"social,omitempty"`
}

// ApplyTo returns base with the non-nil fields overridden.
func (p PartialMetrics) ApplyTo(base Metrics) Metrics {
	out := base
	if p.Financial != nil {
		out.Financial = *p.Financial
	}
	if p.Ecological != nil {
		out.Ecological = *p.Ecological
	}
	if p.Social != nil {
		out.Social = *p.Social
	}
	return out
}

// IsEmpty reports whether no axis is set.
func (p PartialMetrics) IsEmpty() bool {
	return p.Financial == nil && p.Ecological == nil && p.Social == nil
}

// RiskBand classifies an experiment's risk exposure.
type RiskBand string

const (
	RiskNormal RiskBand = "normal"
	RiskHigh   RiskBand = "high"
)

// Role identifies an agent's specialization.
type Role string

const (
	RoleProposal Role = "ProposalAgent"
	RoleRisk     Role = "RiskAgent"
	RoleGrant    Role = "GrantAgent"
)

// Valid reports whether the role is one of the known variants.
func (r Role) Valid() bool {
	switch r {
	case RoleProposal, RoleRisk, RoleGrant:
		return true
	}
	return false
}

// Experiment is a proposed intervention with projected outcomes. Actual
// outcomes arrive later through attestation; verification flips Verified once
// sensor data corroborates the attested metrics.
type Experiment struct {
	ID               int      `json:"id"`
	Description      string   `json:"description"`
	ProjectedMetrics Metrics  `json:"projected_metrics"`
	ActualMetrics    *Metrics `json:"actual_metrics,omitempty"`
	Verified         bool     `json:"verified"`
	RiskBand         RiskBand `json:"risk_band"`
	AuditCommitted   bool     `json:"audit_committed"`
}

// Attestation is an agent's hashed claim of an experiment's actual outcome.
// The hash is an equality fingerprint over the metrics, not a cryptographic
// commitment: anyone holding the metrics can recompute it.
type Attestation struct {
	ExperimentID int       `json:"experiment_id"`
	Metrics      Metrics   `json:"metrics"`
	Hash         string    `json:"hash"`
	Timestamp    time.Time `json:"timestamp"`
}

// HashMetrics produces the content fingerprint stored in attestations:
// sha256 over the canonical JSON encoding of the metrics, hex-encoded.
// encoding/json serializes struct fields in declaration order, which keeps
// the encoding stable across processes.
func HashMetrics(m Metrics) string {
	data, _ := json.Marshal(m)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// TaskName identifies an orchestrator task route.
type TaskName string

const (
	TaskPropose       TaskName = "propose"
	TaskAssessRisk    TaskName = "assessRisk"
	TaskDraftProposal TaskName = "draftProposal"
	TaskNormUpdate    TaskName = "normUpdate"
)

// TaskRequest is the closed set of typed requests the orchestrator accepts.
// Each task name maps to exactly one request type, validated at the boundary
// before any ledger state is touched.
type TaskRequest interface {
	Task() TaskName
	Validate() error
}

// ProposeRequest asks a proposal agent to register a new experiment.
type ProposeRequest struct {
	AgentID          string  `json:"agent_id"`
	Description      string  `json:"description"`
	ProjectedMetrics Metrics `json:"projected_metrics"`
	HighRisk         bool    `json:"high_risk"`
}

func (r ProposeRequest) Task() TaskName { return TaskPropose }

func (r ProposeRequest) Validate() error {
	if r.AgentID == "" {
		return fmt.Errorf("%w: agent id required", ErrInvalidBlueprint)
	}
	if r.Description == "" {
		return fmt.Errorf("%w: description required", ErrInvalidBlueprint)
	}
	if !r.ProjectedMetrics.AllPositive() {
		return fmt.Errorf("%w: projected metrics must all be > 0", ErrInvalidBlueprint)
	}
	return nil
}

// AssessRiskRequest asks a risk agent to score another agent's experiment.
type AssessRiskRequest struct {
	AgentID      string `json:"agent_id"`
	TargetAgent  string `json:"target_agent"`
	ExperimentID int    `json:"experiment_id"`
}

func (r AssessRiskRequest) Task() TaskName { return TaskAssessRisk }

func (r AssessRiskRequest) Validate() error {
	if r.AgentID == "" || r.TargetAgent == "" {
		return fmt.Errorf("%w: agent ids required", ErrInvalidBlueprint)
	}
	if r.ExperimentID < 1 {
		return fmt.Errorf("%w: experiment id must be >= 1", ErrInvalidBlueprint)
	}
	return nil
}

// DraftProposalRequest asks a grant agent to draft a funding proposal.
type DraftProposalRequest struct {
	AgentID string  `json:"agent_id"`
	Title   string  `json:"title"`
	Amount  float64 `json:"amount"`
	Purpose string  `json:"purpose"`
}

func (r DraftProposalRequest) Task() TaskName { return TaskDraftProposal }

func (r DraftProposalRequest) Validate() error {
	if r.AgentID == "" || r.Title == "" {
		return fmt.Errorf("%w: agent id and title required", ErrInvalidBlueprint)
	}
	if r.Amount <= 0 {
		return fmt.Errorf("%w: amount must be > 0", ErrInvalidBlueprint)
	}
	return nil
}

// NormUpdateRequest opens a DAO proposal to change an agent's goal metrics.
type NormUpdateRequest struct {
	ProposerID  string         `json:"proposer_id"`
	TargetAgent string         `json:"target_agent"`
	NewMetric   PartialMetrics `json:"new_metric"`
	Description string         `json:"description"`
}

func (r NormUpdateRequest) Task() TaskName { return TaskNormUpdate }

func (r NormUpdateRequest) Validate() error {
	if r.ProposerID == "" || r.TargetAgent == "" {
		return fmt.Errorf("%w: proposer and target agent required", ErrInvalidBlueprint)
	}
	if r.NewMetric.IsEmpty() {
		return fmt.Errorf("%w: at least one metric field required", ErrInvalidBlueprint)
	}
	return nil
}

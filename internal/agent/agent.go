// Package agent implements the per-agent ledger: experiments, attestations,
// reputation, and escrow. All arithmetic is applied atomically after
// validation so a failed operation never leaves partial state.
package agent

import (
	"fmt"
	"sync"
	"time"

	"swarmgov/internal/config"
	"swarmgov/internal/logging"
	"swarmgov/internal/types"
)

// Agent owns one participant's ledger. Reputation starts at 100 and is
// clamped to [0,100] after every delta; escrow is floored at 0. Only the
// owning agent mutates its experiments and attestations.
type Agent struct {
	mu sync.RWMutex

	id      string
	role    types.Role
	handler RoleHandler

	reputation     float64
	goals          types.Metrics
	currentMetrics types.Metrics
	escrowLocked   float64

	experiments  []types.Experiment
	attestations []types.Attestation

	// logMessages is a bounded ring buffer of ledger events.
	logMessages []string
	logHead     int
	logSize     int

	ledger config.LedgerConfig
}

// New creates an agent with full reputation and empty ledgers. Returns
// ErrUnknownRole for roles outside the known set.
func New(id string, role types.Role, goals types.Metrics, ledger config.LedgerConfig) (*Agent, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownRole, role)
	}

	handler, err := handlerFor(role)
	if err != nil {
		return nil, err
	}

	size := ledger.AgentLogSize
	if size <= 0 {
		size = 64
	}

	return &Agent{
		id:          id,
		role:        role,
		handler:     handler,
		reputation:  100,
		goals:       goals,
		logMessages: make([]string, 0, size),
		logSize:     size,
		ledger:      ledger,
	}, nil
}

// ID returns the agent identifier.
func (a *Agent) ID() string { return a.id }

// Role returns the agent's role.
func (a *Agent) Role() types.Role { return a.role }

// Reputation returns the current reputation score.
func (a *Agent) Reputation() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.reputation
}

// EscrowLocked returns the current escrow holdback.
func (a *Agent) EscrowLocked() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.escrowLocked
}

// Goals returns the agent's target metrics.
func (a *Agent) Goals() types.Metrics {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.goals
}

// SetGoals replaces the agent's target metrics. Called by the orchestrator
// when an accepted DAO norm update lands on this agent.
func (a *Agent) SetGoals(goals types.Metrics) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.goals = goals
	a.logf("goals updated to fin=%.1f eco=%.1f soc=%.1f", goals.Financial, goals.Ecological, goals.Social)
}

// CurrentMetrics returns the running totals of metrics that passed their
// thresholds.
func (a *Agent) CurrentMetrics() types.Metrics {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.currentMetrics
}

// Experiments returns a copy of the experiment ledger.
func (a *Agent) Experiments() []types.Experiment {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]types.Experiment{}, a.experiments...)
}

// Attestations returns a copy of the attestation log.
func (a *Agent) Attestations() []types.Attestation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]types.Attestation{}, a.attestations...)
}

// LogMessages returns the buffered ledger events, oldest first.
func (a *Agent) LogMessages() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]string, 0, len(a.logMessages))
	for i := 0; i < len(a.logMessages); i++ {
		out = append(out, a.logMessages[(a.logHead+i)%len(a.logMessages)])
	}
	return out
}

// ProposeExperiment appends a new experiment to the ledger. Every projected
// metric must be strictly positive. High-risk experiments commit to an audit
// and lock escrow immediately.
func (a *Agent) ProposeExperiment(description string, projected types.Metrics, highRisk bool) (types.Experiment, error) {
	if !projected.AllPositive() {
		return types.Experiment{}, fmt.Errorf("%w: projected metrics must all be > 0", types.ErrInvalidBlueprint)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	band := types.RiskNormal
	if highRisk {
		band = types.RiskHigh
	}

	exp := types.Experiment{
		ID:               len(a.experiments) + 1,
		Description:      description,
		ProjectedMetrics: projected,
		RiskBand:         band,
		AuditCommitted:   highRisk,
	}
	a.experiments = append(a.experiments, exp)

	if highRisk {
		a.escrowLocked += a.ledger.HighRiskLock
		a.logf("experiment %d proposed (high risk, escrow locked +%.0f)", exp.ID, a.ledger.HighRiskLock)
	} else {
		a.logf("experiment %d proposed", exp.ID)
	}

	logging.Get(logging.CategoryAgent).Info("agent %s proposed experiment %d risk=%s", a.id, exp.ID, band)
	return exp, nil
}

// SubmitAttestation records actual outcome metrics for an experiment and
// settles reputation and escrow against the agent's goals. Each metric is
// judged against its own threshold fraction of the goal; passing metrics add
// to the running totals.
func (a *Agent) SubmitAttestation(experimentID int, actual types.Metrics) (types.Attestation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	exp := a.findExperiment(experimentID)
	if exp == nil {
		return types.Attestation{}, fmt.Errorf("%w: id %d", types.ErrExperimentNotFound, experimentID)
	}

	finPass := actual.Financial >= a.ledger.FinancialThreshold*a.goals.Financial
	ecoPass := actual.Ecological >= a.ledger.EcologicalThreshold*a.goals.Ecological
	socPass := actual.Social >= a.ledger.SocialThreshold*a.goals.Social
	fullSuccess := finPass && ecoPass && socPass

	var delta float64
	if finPass {
		delta += a.ledger.MetricPassReward
	} else {
		delta -= a.ledger.FinancialPenalty
	}
	if ecoPass {
		delta += a.ledger.MetricPassReward
	} else {
		delta -= a.ledger.EcologicalPenalty
	}
	if socPass {
		delta += a.ledger.MetricPassReward
	} else {
		delta -= a.ledger.SocialPenalty
	}

	if exp.RiskBand == types.RiskHigh && !fullSuccess {
		delta -= a.ledger.HighRiskMissPenalty
		a.escrowLocked += a.ledger.FailurePenalty
	}
	if fullSuccess {
		a.escrowLocked = floorZero(a.escrowLocked - a.ledger.SuccessRefund)
	}

	a.reputation = clampReputation(a.reputation + delta)

	if finPass {
		a.currentMetrics.Financial += actual.Financial
	}
	if ecoPass {
		a.currentMetrics.Ecological += actual.Ecological
	}
	if socPass {
		a.currentMetrics.Social += actual.Social
	}

	att := types.Attestation{
		ExperimentID: experimentID,
		Metrics:      actual,
		Hash:         types.HashMetrics(actual),
		Timestamp:    time.Now().UTC(),
	}
	a.attestations = append(a.attestations, att)
	actualCopy := actual
	exp.ActualMetrics = &actualCopy

	a.logf("attestation for experiment %d: rep %+.0f (now %.0f), escrow %.0f", experimentID, delta, a.reputation, a.escrowLocked)
	logging.Get(logging.CategoryAgent).Info("agent %s attested experiment %d success=%v delta=%+.0f", a.id, experimentID, fullSuccess, delta)
	return att, nil
}

// Remediate replaces an experiment's actual metrics after corrective work,
// releasing part of the escrow and restoring some reputation. The running
// totals shift by the difference between new and previous metrics, which may
// be negative.
func (a *Agent) Remediate(experimentID int, newMetrics types.Metrics) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	exp := a.findExperiment(experimentID)
	if exp == nil {
		return fmt.Errorf("%w: id %d", types.ErrExperimentNotFound, experimentID)
	}

	var old types.Metrics
	if exp.ActualMetrics != nil {
		old = *exp.ActualMetrics
	}

	metricsCopy := newMetrics
	exp.ActualMetrics = &metricsCopy
	a.currentMetrics = a.currentMetrics.Add(newMetrics.Sub(old))
	a.escrowLocked = floorZero(a.escrowLocked - a.ledger.RemediateRefund)
	a.reputation = clampReputation(a.reputation + a.ledger.RemediateReward)

	a.logf("remediated experiment %d: rep now %.0f, escrow %.0f", experimentID, a.reputation, a.escrowLocked)
	logging.Get(logging.CategoryAgent).Info("agent %s remediated experiment %d", a.id, experimentID)
	return nil
}

// VerifyExperiment checks externally supplied sensor data against the latest
// attestation's stored hash. An exact match marks the experiment verified and
// rewards reputation; a mismatch penalizes it. Returns false without error
// when no attestation exists for the experiment.
//
// This is a deterministic equality check over the metrics encoding, not a
// cryptographic proof: anyone holding the metrics can reproduce the hash.
func (a *Agent) VerifyExperiment(experimentID int, sensorData types.Metrics) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	att := a.latestAttestation(experimentID)
	if att == nil {
		a.logf("verification skipped for experiment %d: no attestation", experimentID)
		logging.Get(logging.CategoryAgent).Warn("agent %s: no attestation for experiment %d", a.id, experimentID)
		return false
	}

	exp := a.findExperiment(experimentID)
	if types.HashMetrics(sensorData) == att.Hash {
		if exp != nil {
			exp.Verified = true
		}
		a.reputation = clampReputation(a.reputation + a.ledger.VerifyReward)
		a.logf("experiment %d verified against sensor data", experimentID)
		return true
	}

	a.reputation = clampReputation(a.reputation - a.ledger.VerifyMismatch)
	a.logf("experiment %d sensor mismatch: rep now %.0f", experimentID, a.reputation)
	logging.Get(logging.CategoryAgent).Warn("agent %s: sensor data mismatch for experiment %d", a.id, experimentID)
	return false
}

// Experiment returns a copy of one experiment by id.
func (a *Agent) Experiment(experimentID int) (types.Experiment, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	exp := a.findExperiment(experimentID)
	if exp == nil {
		return types.Experiment{}, fmt.Errorf("%w: id %d", types.ErrExperimentNotFound, experimentID)
	}
	return *exp, nil
}

// Snapshot captures the agent's ledger for persistence.
func (a *Agent) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return Snapshot{
		ID:             a.id,
		Role:           a.role,
		Reputation:     a.reputation,
		Goals:          a.goals,
		CurrentMetrics: a.currentMetrics,
		EscrowLocked:   a.escrowLocked,
		Experiments:    append([]types.Experiment{}, a.experiments...),
		Attestations:   append([]types.Attestation{}, a.attestations...),
	}
}

// Restore overwrites the ledger from a snapshot.
func (a *Agent) Restore(s Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.reputation = clampReputation(s.Reputation)
	a.goals = s.Goals
	a.currentMetrics = s.CurrentMetrics
	a.escrowLocked = floorZero(s.EscrowLocked)
	a.experiments = append([]types.Experiment{}, s.Experiments...)
	a.attestations = append([]types.Attestation{}, s.Attestations...)
}

// Snapshot is the persisted form of an agent ledger.
type Snapshot struct {
	ID             string              `json:"id"`
	Role           types.Role          `json:"role"`
	Reputation     float64             `json:"reputation"`
	Goals          types.Metrics       `json:"goals"`
	CurrentMetrics types.Metrics       `json:"current_metrics"`
	EscrowLocked   float64             `json:"escrow_locked"`
	Experiments    []types.Experiment  `json:"experiments"`
	Attestations   []types.Attestation `json:"attestations"`
}

// findExperiment returns a pointer into the ledger, or nil. Caller holds the
// lock.
func (a *Agent) findExperiment(id int) *types.Experiment {
	for i := range a.experiments {
		if a.experiments[i].ID == id {
			return &a.experiments[i]
		}
	}
	return nil
}

// latestAttestation returns the most recent attestation for an experiment,
// or nil. Caller holds the lock.
func (a *Agent) latestAttestation(experimentID int) *types.Attestation {
	for i := len(a.attestations) - 1; i >= 0; i-- {
		if a.attestations[i].ExperimentID == experimentID {
			return &a.attestations[i]
		}
	}
	return nil
}

// logf appends a message to the bounded ring buffer. Caller holds the lock.
func (a *Agent) logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if len(a.logMessages) < a.logSize {
		a.logMessages = append(a.logMessages, msg)
		return
	}
	a.logMessages[a.logHead] = msg
	a.logHead = (a.logHead + 1) % a.logSize
}

func clampReputation(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func floorZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

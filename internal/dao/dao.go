// Package dao implements stakeholder-governed norm updates: proposals to
// change an agent's goal metrics, voted on by registered stakeholders and
// resolved by a deterministic policy.
package dao

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"swarmgov/internal/logging"
	"swarmgov/internal/types"
)

// ProposalStatus is the lifecycle state of a norm-update proposal.
type ProposalStatus string

const (
	StatusPending  ProposalStatus = "pending"
	StatusAccepted ProposalStatus = "accepted"
	StatusRejected ProposalStatus = "rejected"
)

// Proposal is one norm update under vote. Votes is keyed by stakeholder id;
// a repeat vote from the same stakeholder overwrites the earlier one.
type Proposal struct {
	ID          string               `json:"id"`
	ProposerID  string               `json:"proposer_id"`
	TargetAgent string               `json:"target_agent"`
	NewMetric   types.PartialMetrics `json:"new_metric"`
	Description string               `json:"description"`
	Status      ProposalStatus       `json:"status"`
	Votes       map[string]bool      `json:"votes"`
	CreatedAt   time.Time            `json:"created_at"`
	ResolvedAt  *time.Time           `json:"resolved_at,omitempty"`
}

// Tally summarizes the votes cast on a proposal.
type Tally struct {
	For     int `json:"for"`
	Against int `json:"against"`
	Cast    int `json:"cast"`
	Voters  int `json:"voters"`
}

// ResolutionPolicy decides a proposal's fate from its tally. Decide returns
// pending while the vote is still open.
type ResolutionPolicy interface {
	Name() string
	Decide(t Tally) ProposalStatus
}

// MajorityCast resolves once every registered stakeholder has voted: a strict
// majority of cast votes accepts, anything else, ties included, rejects.
type MajorityCast struct{}

func (MajorityCast) Name() string { return "majority-cast" }

func (MajorityCast) Decide(t Tally) ProposalStatus {
	if t.Cast < t.Voters {
		return StatusPending
	}
	if t.For > t.Against {
		return StatusAccepted
	}
	return StatusRejected
}

// DAO holds the stakeholder registry and proposal book. All mutation goes
// through its methods; the orchestrator reads accepted proposals and applies
// them to agent goals itself.
type DAO struct {
	mu           sync.RWMutex
	stakeholders map[string]struct{}
	proposals    map[string]*Proposal
	order        []string
	policy       ResolutionPolicy
	log          *logging.Logger
}

// New creates a DAO with the given resolution policy. A nil policy defaults
// to MajorityCast.
func New(policy ResolutionPolicy) *DAO {
	if policy == nil {
		policy = MajorityCast{}
	}
	return &DAO{
		stakeholders: make(map[string]struct{}),
		proposals:    make(map[string]*Proposal),
		policy:       policy,
		log:          logging.Get(logging.CategoryDAO),
	}
}

// RegisterStakeholder adds a voting stakeholder. Registering the same id
// twice is a no-op.
func (d *DAO) RegisterStakeholder(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.stakeholders[id]; !ok {
		d.stakeholders[id] = struct{}{}
		d.log.Info("stakeholder %s registered (%d total)", id, len(d.stakeholders))
	}
}

// Stakeholders returns the registered stakeholder ids, sorted.
func (d *DAO) Stakeholders() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]string, 0, len(d.stakeholders))
	for id := range d.stakeholders {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ProposeNormUpdate opens a proposal to change the target agent's goal
// metrics. The proposal starts pending with an empty vote map.
func (d *DAO) ProposeNormUpdate(proposerID, targetAgent string, newMetric types.PartialMetrics, description string) (Proposal, error) {
	if proposerID == "" || targetAgent == "" {
		return Proposal{}, fmt.Errorf("%w: proposer and target agent required", types.ErrInvalidBlueprint)
	}
	if newMetric.IsEmpty() {
		return Proposal{}, fmt.Errorf("%w: at least one metric field required", types.ErrInvalidBlueprint)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	p := &Proposal{
		ID:          uuid.New().String(),
		ProposerID:  proposerID,
		TargetAgent: targetAgent,
		NewMetric:   newMetric,
		Description: description,
		Status:      StatusPending,
		Votes:       make(map[string]bool),
		CreatedAt:   time.Now().UTC(),
	}
	d.proposals[p.ID] = p
	d.order = append(d.order, p.ID)

	d.log.Info("proposal %s opened by %s targeting %s", p.ID, proposerID, targetAgent)
	return *p, nil
}

// VoteOnProposal records a stakeholder's vote. A second vote from the same
// stakeholder overwrites the first. Once every registered stakeholder has
// voted the policy resolves the proposal; voting on a resolved proposal is
// rejected.
func (d *DAO) VoteOnProposal(proposalID, stakeholder string, support bool) (Proposal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.proposals[proposalID]
	if !ok {
		return Proposal{}, fmt.Errorf("%w: %s", types.ErrUnknownProposal, proposalID)
	}
	if _, ok := d.stakeholders[stakeholder]; !ok {
		return Proposal{}, fmt.Errorf("%w: %s", types.ErrUnknownStakeholder, stakeholder)
	}
	if p.Status != StatusPending {
		return Proposal{}, fmt.Errorf("%w: proposal %s already %s", types.ErrUnknownProposal, proposalID, p.Status)
	}

	p.Votes[stakeholder] = support
	d.log.Debug("vote on %s by %s: support=%v (%d/%d cast)",
		proposalID, stakeholder, support, len(p.Votes), len(d.stakeholders))

	if status := d.policy.Decide(d.tally(p)); status != StatusPending {
		now := time.Now().UTC()
		p.Status = status
		p.ResolvedAt = &now
		d.log.Info("proposal %s resolved %s under %s policy", proposalID, status, d.policy.Name())
	}

	return clone(p), nil
}

// Proposal returns a copy of one proposal.
func (d *DAO) Proposal(proposalID string) (Proposal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.proposals[proposalID]
	if !ok {
		return Proposal{}, fmt.Errorf("%w: %s", types.ErrUnknownProposal, proposalID)
	}
	return clone(p), nil
}

// Proposals returns copies of all proposals in creation order.
func (d *DAO) Proposals() []Proposal {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Proposal, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, clone(d.proposals[id]))
	}
	return out
}

// TallyProposal returns the current vote counts for a proposal.
func (d *DAO) TallyProposal(proposalID string) (Tally, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.proposals[proposalID]
	if !ok {
		return Tally{}, fmt.Errorf("%w: %s", types.ErrUnknownProposal, proposalID)
	}
	return d.tally(p), nil
}

// Snapshot captures the DAO for persistence or context assembly.
func (d *DAO) Snapshot() State {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := State{Policy: d.policy.Name()}
	for id := range d.stakeholders {
		s.Stakeholders = append(s.Stakeholders, id)
	}
	sort.Strings(s.Stakeholders)
	for _, id := range d.order {
		s.Proposals = append(s.Proposals, clone(d.proposals[id]))
	}
	return s
}

// Restore replaces the registry and proposal book from a snapshot.
func (d *DAO) Restore(s State) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stakeholders = make(map[string]struct{}, len(s.Stakeholders))
	for _, id := range s.Stakeholders {
		d.stakeholders[id] = struct{}{}
	}
	d.proposals = make(map[string]*Proposal, len(s.Proposals))
	d.order = d.order[:0]
	for i := range s.Proposals {
		p := clone(&s.Proposals[i])
		d.proposals[p.ID] = &p
		d.order = append(d.order, p.ID)
	}
}

// State is the persisted form of the DAO.
type State struct {
	Policy       string     `json:"policy"`
	Stakeholders []string   `json:"stakeholders"`
	Proposals    []Proposal `json:"proposals"`
}

// tally counts votes under the current registry. Caller holds the lock.
func (d *DAO) tally(p *Proposal) Tally {
	t := Tally{Voters: len(d.stakeholders)}
	for _, support := range p.Votes {
		t.Cast++
		if support {
			t.For++
		} else {
			t.Against++
		}
	}
	return t
}

// clone deep-copies a proposal so callers never alias the vote map.
func clone(p *Proposal) Proposal {
	out := *p
	out.Votes = make(map[string]bool, len(p.Votes))
	for k, v := range p.Votes {
		out.Votes[k] = v
	}
	if p.ResolvedAt != nil {
		at := *p.ResolvedAt
		out.ResolvedAt = &at
	}
	return out
}

package orchestrator

import (
	"errors"
	"fmt"
	"sort"

	"swarmgov/internal/agent"
	"swarmgov/internal/dao"
	"swarmgov/internal/pipeline"
	"swarmgov/internal/types"
)

const snapshotKey = "system/state"

// systemState is the persisted form of a whole session.
type systemState struct {
	Agents   []agent.Snapshot   `json:"agents"`
	DAO      dao.State          `json:"dao"`
	Pipeline pipeline.TaskState `json:"pipeline"`
}

// ErrNoStore is returned when persistence is requested on a store-less
// orchestrator.
var ErrNoStore = errors.New("no store configured")

// SaveState persists agents, DAO, pipeline state, and the trust chain.
func (o *Orchestrator) SaveState() error {
	if o.store == nil {
		return ErrNoStore
	}

	o.mu.RLock()
	state := systemState{
		DAO:      o.dao.Snapshot(),
		Pipeline: o.pipeline.State(),
	}
	for _, a := range o.agents {
		state.Agents = append(state.Agents, a.Snapshot())
	}
	o.mu.RUnlock()
	sort.Slice(state.Agents, func(i, j int) bool { return state.Agents[i].ID < state.Agents[j].ID })

	if err := o.store.Save(snapshotKey, state); err != nil {
		return err
	}
	if err := o.store.AppendTrustEntries(o.graph.Entries()); err != nil {
		return err
	}

	o.log.Info("session state saved (%d agents, %d trust entries)", len(state.Agents), o.graph.Len())
	return nil
}

// LoadState restores a persisted session, replacing all in-memory state.
// The trust chain is verified during restore.
func (o *Orchestrator) LoadState() error {
	if o.store == nil {
		return ErrNoStore
	}

	var state systemState
	if err := o.store.Load(snapshotKey, &state); err != nil {
		return err
	}

	agents := make(map[string]*agent.Agent, len(state.Agents))
	for _, snap := range state.Agents {
		a, err := agent.New(snap.ID, snap.Role, snap.Goals, o.cfg.Ledger)
		if err != nil {
			return fmt.Errorf("restore agent %s: %w", snap.ID, err)
		}
		a.Restore(snap)
		agents[snap.ID] = a
	}

	entries, err := o.store.LoadTrustEntries()
	if err != nil {
		return err
	}
	if err := o.graph.Restore(entries); err != nil {
		return fmt.Errorf("restore trust chain: %w", err)
	}

	o.mu.Lock()
	o.agents = agents
	o.mu.Unlock()

	o.dao.Restore(state.DAO)
	o.pipeline.Restore(state.Pipeline)

	o.log.Info("session state restored (%d agents, %d trust entries)", len(agents), len(entries))
	return nil
}

// Status summarizes the session for display.
type Status struct {
	Agents       []AgentStatus         `json:"agents"`
	Stakeholders []string              `json:"stakeholders"`
	Proposals    []dao.Proposal        `json:"proposals"`
	Pipeline     pipeline.TaskState    `json:"pipeline"`
	TrustEntries int                   `json:"trust_entries"`
	Transitions  []pipeline.Transition `json:"transitions,omitempty"`
}

// AgentStatus is one agent's ledger summary.
type AgentStatus struct {
	ID          string        `json:"id"`
	Role        types.Role    `json:"role"`
	Reputation  float64       `json:"reputation"`
	Escrow      float64       `json:"escrow"`
	Goals       types.Metrics `json:"goals"`
	Current     types.Metrics `json:"current"`
	Experiments int           `json:"experiments"`
}

// Status reports the current session state.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	s := Status{
		Stakeholders: o.dao.Stakeholders(),
		Proposals:    o.dao.Proposals(),
		Pipeline:     o.pipeline.State(),
		TrustEntries: o.graph.Len(),
		Transitions:  o.pipeline.History(),
	}
	for _, a := range o.agents {
		s.Agents = append(s.Agents, AgentStatus{
			ID:          a.ID(),
			Role:        a.Role(),
			Reputation:  a.Reputation(),
			Escrow:      a.EscrowLocked(),
			Goals:       a.Goals(),
			Current:     a.CurrentMetrics(),
			Experiments: len(a.Experiments()),
		})
	}
	sort.Slice(s.Agents, func(i, j int) bool { return s.Agents[i].ID < s.Agents[j].ID })
	return s
}

// Package trust implements the append-only TrustGraph: a hash-chained audit
// log of agent actions plus peer evaluation of attested experiment outcomes
// against external sensor data. The graph never mutates agent state; the
// orchestrator reads its verdicts and applies consequences itself.
package trust

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"swarmgov/internal/logging"
	"swarmgov/internal/types"
)

// Entry is one link in the chain. CurrentHash covers every other field, and
// PreviousHash points at the prior entry, so any edit to history breaks
// verification from that point forward.
type Entry struct {
	ID           string          `json:"id"`
	AgentID      string          `json:"agent_id"`
	Action       string          `json:"action"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	PreviousHash string          `json:"previous_hash,omitempty"`
	CurrentHash  string          `json:"current_hash"`
}

// Ledger is the read-only slice of an agent the graph needs for evaluation.
// *agent.Agent satisfies it.
type Ledger interface {
	ID() string
	Experiment(experimentID int) (types.Experiment, error)
	Attestations() []types.Attestation
}

// Evaluation is the graph's verdict on one attested experiment.
type Evaluation struct {
	AgentID      string        `json:"agent_id"`
	ExperimentID int           `json:"experiment_id"`
	Match        bool          `json:"match"`
	AttestedHash string        `json:"attested_hash"`
	SensorHash   string        `json:"sensor_hash"`
	Deviation    types.Metrics `json:"deviation"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Graph is the in-memory chain. Entries only ever append; Verify recomputes
// every hash to detect tampering.
type Graph struct {
	mu      sync.RWMutex
	entries []Entry
	log     *logging.Logger
}

// NewGraph returns an empty chain.
func NewGraph() *Graph {
	return &Graph{log: logging.Get(logging.CategoryTrust)}
}

// Record appends an action to the chain. The payload is serialized to JSON;
// a payload that cannot be serialized is an error and nothing is appended.
func (g *Graph) Record(agentID, action string, payload interface{}) (Entry, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Entry{}, fmt.Errorf("encode trust payload: %w", err)
		}
		raw = data
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	entry := Entry{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		Action:    action,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}
	if n := len(g.entries); n > 0 {
		entry.PreviousHash = g.entries[n-1].CurrentHash
	}
	entry.CurrentHash = hashEntry(entry)

	g.entries = append(g.entries, entry)
	g.log.Debug("recorded %s by %s (chain length %d)", action, agentID, len(g.entries))
	return entry, nil
}

// EvaluateExperiment corroborates an agent's latest attestation for an
// experiment against independently observed sensor metrics. The verdict and
// the per-axis deviation are chained for auditability. Returns
// ErrExperimentNotFound when the agent holds no attestation for the id.
func (g *Graph) EvaluateExperiment(agent Ledger, experimentID int, sensor types.Metrics) (Evaluation, error) {
	if _, err := agent.Experiment(experimentID); err != nil {
		return Evaluation{}, err
	}

	var attested *types.Attestation
	atts := agent.Attestations()
	for i := len(atts) - 1; i >= 0; i-- {
		if atts[i].ExperimentID == experimentID {
			attested = &atts[i]
			break
		}
	}
	if attested == nil {
		return Evaluation{}, fmt.Errorf("%w: agent %s has no attestation for experiment %d",
			types.ErrExperimentNotFound, agent.ID(), experimentID)
	}

	sensorHash := types.HashMetrics(sensor)
	eval := Evaluation{
		AgentID:      agent.ID(),
		ExperimentID: experimentID,
		Match:        sensorHash == attested.Hash,
		AttestedHash: attested.Hash,
		SensorHash:   sensorHash,
		Deviation:    sensor.Sub(attested.Metrics),
		Timestamp:    time.Now().UTC(),
	}

	if _, err := g.Record(agent.ID(), "evaluate_experiment", eval); err != nil {
		return Evaluation{}, err
	}

	if eval.Match {
		g.log.Info("experiment %d of %s corroborated by sensor data", experimentID, agent.ID())
	} else {
		g.log.Warn("experiment %d of %s contradicts sensor data (deviation fin=%.2f eco=%.2f soc=%.2f)",
			experimentID, agent.ID(), eval.Deviation.Financial, eval.Deviation.Ecological, eval.Deviation.Social)
	}
	return eval, nil
}

// Entries returns a copy of the chain, oldest first.
func (g *Graph) Entries() []Entry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Entry{}, g.entries...)
}

// EntriesFor returns the chain entries recorded for one agent.
func (g *Graph) EntriesFor(agentID string) []Entry {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Entry
	for _, e := range g.entries {
		if e.AgentID == agentID {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the chain length.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// Verify walks the chain recomputing every hash. It returns an error naming
// the first entry whose content or linkage no longer matches.
func (g *Graph) Verify() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	prev := ""
	for i, e := range g.entries {
		if e.PreviousHash != prev {
			return fmt.Errorf("trust chain broken at entry %d (%s): previous hash mismatch", i, e.ID)
		}
		if hashEntry(e) != e.CurrentHash {
			return fmt.Errorf("trust chain broken at entry %d (%s): content hash mismatch", i, e.ID)
		}
		prev = e.CurrentHash
	}
	return nil
}

// Restore replaces the chain from persisted entries after verifying their
// integrity.
func (g *Graph) Restore(entries []Entry) error {
	restored := &Graph{entries: entries, log: g.log}
	if err := restored.Verify(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries = append([]Entry{}, entries...)
	return nil
}

// hashEntry computes the content hash over every field except CurrentHash.
// json.Marshal keeps field order stable, so the digest is reproducible.
func hashEntry(e Entry) string {
	e.CurrentHash = ""
	data, _ := json.Marshal(e)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

package agent

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmgov/internal/config"
	"swarmgov/internal/types"
)

func newTestAgent(t *testing.T, role types.Role, goals types.Metrics) *Agent {
	t.Helper()
	a, err := New("agent-1", role, goals, config.DefaultConfig().Ledger)
	require.NoError(t, err)
	return a
}

func TestNewRejectsUnknownRole(t *testing.T) {
	_, err := New("a", types.Role("JanitorAgent"), types.Metrics{}, config.DefaultConfig().Ledger)
	assert.ErrorIs(t, err, types.ErrUnknownRole)
}

func TestProposeExperiment(t *testing.T) {
	t.Run("high risk locks escrow and commits audit", func(t *testing.T) {
		a := newTestAgent(t, types.RoleProposal, types.Metrics{Financial: 5, Ecological: 100, Social: 70})

		exp, err := a.ProposeExperiment("x", types.Metrics{Financial: 6, Ecological: 90, Social: 75}, true)
		require.NoError(t, err)

		assert.Equal(t, 1, exp.ID)
		assert.Equal(t, types.RiskHigh, exp.RiskBand)
		assert.True(t, exp.AuditCommitted)
		assert.Equal(t, 20.0, a.EscrowLocked())
	})

	t.Run("normal risk leaves escrow untouched", func(t *testing.T) {
		a := newTestAgent(t, types.RoleProposal, types.Metrics{Financial: 5, Ecological: 100, Social: 70})

		exp, err := a.ProposeExperiment("y", types.Metrics{Financial: 1, Ecological: 1, Social: 1}, false)
		require.NoError(t, err)

		assert.Equal(t, types.RiskNormal, exp.RiskBand)
		assert.False(t, exp.AuditCommitted)
		assert.Zero(t, a.EscrowLocked())
	})

	t.Run("non-positive projection rejected without side effects", func(t *testing.T) {
		a := newTestAgent(t, types.RoleProposal, types.Metrics{Financial: 5, Ecological: 100, Social: 70})

		_, err := a.ProposeExperiment("z", types.Metrics{Financial: 6, Ecological: 0, Social: 75}, true)
		assert.ErrorIs(t, err, types.ErrInvalidBlueprint)
		assert.Empty(t, a.Experiments())
		assert.Zero(t, a.EscrowLocked())
	})

	t.Run("ids are sequential", func(t *testing.T) {
		a := newTestAgent(t, types.RoleProposal, types.Metrics{Financial: 5, Ecological: 100, Social: 70})
		for i := 1; i <= 3; i++ {
			exp, err := a.ProposeExperiment(fmt.Sprintf("e%d", i), types.Metrics{Financial: 1, Ecological: 1, Social: 1}, false)
			require.NoError(t, err)
			assert.Equal(t, i, exp.ID)
		}
	})
}

func TestSubmitAttestation(t *testing.T) {
	goals := types.Metrics{Financial: 5, Ecological: 100, Social: 70}

	t.Run("high risk partial miss", func(t *testing.T) {
		a := newTestAgent(t, types.RoleProposal, goals)
		_, err := a.ProposeExperiment("x", types.Metrics{Financial: 6, Ecological: 90, Social: 75}, true)
		require.NoError(t, err)
		require.Equal(t, 20.0, a.EscrowLocked())

		actual := types.Metrics{Financial: 6, Ecological: 79, Social: 65}
		att, err := a.SubmitAttestation(1, actual)
		require.NoError(t, err)

		// financial 6 >= 5 passes (+5), ecological 79 < 80 fails (-12),
		// social 65 >= 63 passes (+5), high-risk miss adds -15: net -17.
		assert.Equal(t, 83.0, a.Reputation())
		assert.Equal(t, 50.0, a.EscrowLocked())

		assert.Equal(t, types.HashMetrics(actual), att.Hash)
		assert.Equal(t, 1, att.ExperimentID)

		// Only passing axes accumulate.
		cur := a.CurrentMetrics()
		assert.Equal(t, 6.0, cur.Financial)
		assert.Zero(t, cur.Ecological)
		assert.Equal(t, 65.0, cur.Social)

		exp, err := a.Experiment(1)
		require.NoError(t, err)
		require.NotNil(t, exp.ActualMetrics)
		assert.Equal(t, actual, *exp.ActualMetrics)
		assert.False(t, exp.Verified)
	})

	t.Run("full success refunds escrow and caps reputation", func(t *testing.T) {
		a := newTestAgent(t, types.RoleProposal, goals)
		_, err := a.ProposeExperiment("x", types.Metrics{Financial: 6, Ecological: 90, Social: 75}, true)
		require.NoError(t, err)

		_, err = a.SubmitAttestation(1, types.Metrics{Financial: 6, Ecological: 90, Social: 70})
		require.NoError(t, err)

		// +15 would exceed 100 so the clamp holds.
		assert.Equal(t, 100.0, a.Reputation())
		assert.Equal(t, 10.0, a.EscrowLocked())
	})

	t.Run("normal risk misses skip the high risk penalty", func(t *testing.T) {
		a := newTestAgent(t, types.RoleProposal, goals)
		_, err := a.ProposeExperiment("x", types.Metrics{Financial: 6, Ecological: 90, Social: 75}, false)
		require.NoError(t, err)

		_, err = a.SubmitAttestation(1, types.Metrics{Financial: 1, Ecological: 1, Social: 1})
		require.NoError(t, err)

		// All three axes fail: -10 -12 -8 = -30, no escrow movement.
		assert.Equal(t, 70.0, a.Reputation())
		assert.Zero(t, a.EscrowLocked())
	})

	t.Run("reputation floors at zero", func(t *testing.T) {
		a := newTestAgent(t, types.RoleProposal, goals)
		for i := 0; i < 5; i++ {
			_, err := a.ProposeExperiment("x", types.Metrics{Financial: 6, Ecological: 90, Social: 75}, false)
			require.NoError(t, err)
			_, err = a.SubmitAttestation(i+1, types.Metrics{Financial: 1, Ecological: 1, Social: 1})
			require.NoError(t, err)
		}
		assert.Zero(t, a.Reputation())
	})

	t.Run("unknown experiment", func(t *testing.T) {
		a := newTestAgent(t, types.RoleProposal, goals)
		_, err := a.SubmitAttestation(42, types.Metrics{Financial: 1, Ecological: 1, Social: 1})
		assert.ErrorIs(t, err, types.ErrExperimentNotFound)
	})
}

func TestRemediate(t *testing.T) {
	goals := types.Metrics{Financial: 5, Ecological: 100, Social: 70}

	t.Run("after a failed attestation", func(t *testing.T) {
		a := newTestAgent(t, types.RoleProposal, goals)
		_, err := a.ProposeExperiment("x", types.Metrics{Financial: 6, Ecological: 90, Social: 75}, true)
		require.NoError(t, err)
		_, err = a.SubmitAttestation(1, types.Metrics{Financial: 6, Ecological: 79, Social: 65})
		require.NoError(t, err)
		require.Equal(t, 83.0, a.Reputation())
		require.Equal(t, 50.0, a.EscrowLocked())

		err = a.Remediate(1, types.Metrics{Financial: 6, Ecological: 95, Social: 70})
		require.NoError(t, err)

		assert.Equal(t, 93.0, a.Reputation())
		assert.Equal(t, 25.0, a.EscrowLocked())

		exp, err := a.Experiment(1)
		require.NoError(t, err)
		require.NotNil(t, exp.ActualMetrics)
		assert.Equal(t, 95.0, exp.ActualMetrics.Ecological)
	})

	t.Run("escrow floors at zero", func(t *testing.T) {
		a := newTestAgent(t, types.RoleProposal, goals)
		_, err := a.ProposeExperiment("x", types.Metrics{Financial: 6, Ecological: 90, Social: 75}, false)
		require.NoError(t, err)

		err = a.Remediate(1, types.Metrics{Financial: 6, Ecological: 95, Social: 70})
		require.NoError(t, err)
		assert.Zero(t, a.EscrowLocked())
		assert.Equal(t, 100.0, a.Reputation())
	})

	t.Run("unknown experiment", func(t *testing.T) {
		a := newTestAgent(t, types.RoleProposal, goals)
		err := a.Remediate(9, types.Metrics{Financial: 1, Ecological: 1, Social: 1})
		assert.ErrorIs(t, err, types.ErrExperimentNotFound)
	})
}

func TestVerifyExperiment(t *testing.T) {
	goals := types.Metrics{Financial: 5, Ecological: 100, Social: 70}
	actual := types.Metrics{Financial: 6, Ecological: 79, Social: 65}

	setup := func(t *testing.T) *Agent {
		a := newTestAgent(t, types.RoleProposal, goals)
		_, err := a.ProposeExperiment("x", types.Metrics{Financial: 6, Ecological: 90, Social: 75}, true)
		require.NoError(t, err)
		_, err = a.SubmitAttestation(1, actual)
		require.NoError(t, err)
		return a
	}

	t.Run("matching sensor data verifies and rewards", func(t *testing.T) {
		a := setup(t)
		before := a.Reputation()

		ok := a.VerifyExperiment(1, actual)
		assert.True(t, ok)
		assert.Equal(t, before+5, a.Reputation())

		exp, err := a.Experiment(1)
		require.NoError(t, err)
		assert.True(t, exp.Verified)
	})

	t.Run("mismatch penalizes and leaves unverified", func(t *testing.T) {
		a := setup(t)
		before := a.Reputation()

		ok := a.VerifyExperiment(1, types.Metrics{Financial: 6, Ecological: 80, Social: 65})
		assert.False(t, ok)
		assert.Equal(t, before-10, a.Reputation())

		exp, err := a.Experiment(1)
		require.NoError(t, err)
		assert.False(t, exp.Verified)
	})

	t.Run("no attestation fails silently", func(t *testing.T) {
		a := newTestAgent(t, types.RoleProposal, goals)
		before := a.Reputation()

		ok := a.VerifyExperiment(7, actual)
		assert.False(t, ok)
		assert.Equal(t, before, a.Reputation())
	})
}

func TestLogRingBuffer(t *testing.T) {
	cfg := config.DefaultConfig().Ledger
	cfg.AgentLogSize = 4

	a, err := New("ring", types.RoleProposal, types.Metrics{Financial: 5, Ecological: 100, Social: 70}, cfg)
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		_, err := a.ProposeExperiment(fmt.Sprintf("e%d", i), types.Metrics{Financial: 1, Ecological: 1, Social: 1}, false)
		require.NoError(t, err)
	}

	msgs := a.LogMessages()
	require.Len(t, msgs, 4)
	assert.Contains(t, msgs[0], "experiment 3 proposed")
	assert.Contains(t, msgs[3], "experiment 6 proposed")
}

func TestSnapshotRestore(t *testing.T) {
	a := newTestAgent(t, types.RoleProposal, types.Metrics{Financial: 5, Ecological: 100, Social: 70})
	_, err := a.ProposeExperiment("x", types.Metrics{Financial: 6, Ecological: 90, Social: 75}, true)
	require.NoError(t, err)
	_, err = a.SubmitAttestation(1, types.Metrics{Financial: 6, Ecological: 79, Social: 65})
	require.NoError(t, err)

	snap := a.Snapshot()

	b := newTestAgent(t, types.RoleProposal, types.Metrics{})
	b.Restore(snap)

	assert.Equal(t, a.Reputation(), b.Reputation())
	assert.Equal(t, a.EscrowLocked(), b.EscrowLocked())
	assert.Equal(t, a.Goals(), b.Goals())
	assert.Equal(t, a.CurrentMetrics(), b.CurrentMetrics())
	assert.Equal(t, a.Experiments(), b.Experiments())
	assert.Equal(t, a.Attestations(), b.Attestations())
}

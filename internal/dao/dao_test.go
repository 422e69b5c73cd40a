package dao

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmgov/internal/types"
)

func metric(v float64) *float64 { return &v }

func newTestDAO(t *testing.T, stakeholders ...string) *DAO {
	t.Helper()
	d := New(nil)
	for _, s := range stakeholders {
		d.RegisterStakeholder(s)
	}
	return d
}

func openProposal(t *testing.T, d *DAO) Proposal {
	t.Helper()
	p, err := d.ProposeNormUpdate("proposer", "agent-1",
		types.PartialMetrics{Ecological: metric(120)}, "raise the ecological bar")
	require.NoError(t, err)
	return p
}

func TestProposeNormUpdate(t *testing.T) {
	t.Run("opens pending with empty votes", func(t *testing.T) {
		d := newTestDAO(t, "s1", "s2")
		p := openProposal(t, d)

		assert.NotEmpty(t, p.ID)
		assert.Equal(t, StatusPending, p.Status)
		assert.Empty(t, p.Votes)
		assert.Equal(t, "agent-1", p.TargetAgent)
	})

	t.Run("rejects empty metric update", func(t *testing.T) {
		d := newTestDAO(t, "s1")
		_, err := d.ProposeNormUpdate("proposer", "agent-1", types.PartialMetrics{}, "")
		assert.ErrorIs(t, err, types.ErrInvalidBlueprint)
	})

	t.Run("rejects missing ids", func(t *testing.T) {
		d := newTestDAO(t, "s1")
		_, err := d.ProposeNormUpdate("", "agent-1", types.PartialMetrics{Financial: metric(1)}, "")
		assert.ErrorIs(t, err, types.ErrInvalidBlueprint)
	})
}

func TestVoteOnProposal(t *testing.T) {
	t.Run("unknown proposal", func(t *testing.T) {
		d := newTestDAO(t, "s1")
		_, err := d.VoteOnProposal("nope", "s1", true)
		assert.ErrorIs(t, err, types.ErrUnknownProposal)
	})

	t.Run("unknown stakeholder", func(t *testing.T) {
		d := newTestDAO(t, "s1")
		p := openProposal(t, d)
		_, err := d.VoteOnProposal(p.ID, "outsider", true)
		assert.ErrorIs(t, err, types.ErrUnknownStakeholder)
	})

	t.Run("revote overwrites instead of duplicating", func(t *testing.T) {
		d := newTestDAO(t, "s1", "s2", "s3")
		p := openProposal(t, d)

		_, err := d.VoteOnProposal(p.ID, "s1", true)
		require.NoError(t, err)
		got, err := d.VoteOnProposal(p.ID, "s1", false)
		require.NoError(t, err)

		require.Len(t, got.Votes, 1)
		assert.False(t, got.Votes["s1"])

		tally, err := d.TallyProposal(p.ID)
		require.NoError(t, err)
		assert.Equal(t, Tally{For: 0, Against: 1, Cast: 1, Voters: 3}, tally)
	})

	t.Run("stays pending until all stakeholders vote", func(t *testing.T) {
		d := newTestDAO(t, "s1", "s2", "s3")
		p := openProposal(t, d)

		got, err := d.VoteOnProposal(p.ID, "s1", true)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)

		got, err = d.VoteOnProposal(p.ID, "s2", true)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)
	})
}

func TestResolution(t *testing.T) {
	t.Run("majority accepts", func(t *testing.T) {
		d := newTestDAO(t, "s1", "s2", "s3")
		p := openProposal(t, d)

		_, err := d.VoteOnProposal(p.ID, "s1", true)
		require.NoError(t, err)
		_, err = d.VoteOnProposal(p.ID, "s2", false)
		require.NoError(t, err)
		got, err := d.VoteOnProposal(p.ID, "s3", true)
		require.NoError(t, err)

		assert.Equal(t, StatusAccepted, got.Status)
		require.NotNil(t, got.ResolvedAt)
	})

	t.Run("majority rejects", func(t *testing.T) {
		d := newTestDAO(t, "s1", "s2", "s3")
		p := openProposal(t, d)

		_, err := d.VoteOnProposal(p.ID, "s1", false)
		require.NoError(t, err)
		_, err = d.VoteOnProposal(p.ID, "s2", false)
		require.NoError(t, err)
		got, err := d.VoteOnProposal(p.ID, "s3", true)
		require.NoError(t, err)

		assert.Equal(t, StatusRejected, got.Status)
	})

	t.Run("ties reject", func(t *testing.T) {
		d := newTestDAO(t, "s1", "s2")
		p := openProposal(t, d)

		_, err := d.VoteOnProposal(p.ID, "s1", true)
		require.NoError(t, err)
		got, err := d.VoteOnProposal(p.ID, "s2", false)
		require.NoError(t, err)

		assert.Equal(t, StatusRejected, got.Status)
	})

	t.Run("voting on a resolved proposal fails", func(t *testing.T) {
		d := newTestDAO(t, "s1")
		p := openProposal(t, d)

		_, err := d.VoteOnProposal(p.ID, "s1", true)
		require.NoError(t, err)
		_, err = d.VoteOnProposal(p.ID, "s1", false)
		assert.ErrorIs(t, err, types.ErrUnknownProposal)
	})
}

func TestMajorityCastDecide(t *testing.T) {
	cases := []struct {
		name  string
		tally Tally
		want  ProposalStatus
	}{
		{"open vote stays pending", Tally{For: 2, Against: 0, Cast: 2, Voters: 3}, StatusPending},
		{"strict majority accepts", Tally{For: 2, Against: 1, Cast: 3, Voters: 3}, StatusAccepted},
		{"tie rejects", Tally{For: 1, Against: 1, Cast: 2, Voters: 2}, StatusRejected},
		{"unanimous against rejects", Tally{For: 0, Against: 3, Cast: 3, Voters: 3}, StatusRejected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MajorityCast{}.Decide(tc.tally))
		})
	}
}

func TestSnapshotRestore(t *testing.T) {
	d := newTestDAO(t, "s2", "s1")
	p := openProposal(t, d)
	_, err := d.VoteOnProposal(p.ID, "s1", true)
	require.NoError(t, err)

	snap := d.Snapshot()
	assert.Equal(t, "majority-cast", snap.Policy)
	assert.Equal(t, []string{"s1", "s2"}, snap.Stakeholders)

	fresh := New(nil)
	fresh.Restore(snap)

	assert.Equal(t, d.Stakeholders(), fresh.Stakeholders())
	assert.Equal(t, d.Proposals(), fresh.Proposals())

	// The restored proposal is live: the remaining stakeholder can resolve it.
	got, err := fresh.VoteOnProposal(p.ID, "s2", true)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, got.Status)
}

package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmgov/internal/types"
)

func TestProposalHandlerExecute(t *testing.T) {
	a := newTestAgent(t, types.RoleProposal, types.Metrics{Financial: 5, Ecological: 100, Social: 70})

	out, err := a.ExecuteTask(TaskInput{Request: types.ProposeRequest{
		AgentID:          a.ID(),
		Description:      "solar microgrid pilot",
		ProjectedMetrics: types.Metrics{Financial: 6, Ecological: 90, Social: 75},
		HighRisk:         true,
	}})
	require.NoError(t, err)

	exp, ok := out.(types.Experiment)
	require.True(t, ok)
	assert.Equal(t, 1, exp.ID)
	assert.Equal(t, types.RiskHigh, exp.RiskBand)
	assert.Equal(t, 20.0, a.EscrowLocked())
}

func TestProposalHandlerRejectsForeignTask(t *testing.T) {
	a := newTestAgent(t, types.RoleProposal, types.Metrics{Financial: 5, Ecological: 100, Social: 70})

	_, err := a.ExecuteTask(TaskInput{Request: types.DraftProposalRequest{
		AgentID: a.ID(),
		Title:   "grant",
		Amount:  100,
	}})
	assert.ErrorIs(t, err, types.ErrUnknownTask)
}

func TestExecuteTaskValidatesFirst(t *testing.T) {
	a := newTestAgent(t, types.RoleProposal, types.Metrics{Financial: 5, Ecological: 100, Social: 70})

	_, err := a.ExecuteTask(TaskInput{Request: types.ProposeRequest{AgentID: a.ID()}})
	assert.ErrorIs(t, err, types.ErrInvalidBlueprint)
	assert.Empty(t, a.Experiments())

	_, err = a.ExecuteTask(TaskInput{})
	assert.ErrorIs(t, err, types.ErrInvalidBlueprint)
}

func TestRiskHandlerExecute(t *testing.T) {
	assessor := newTestAgent(t, types.RoleRisk, types.Metrics{Financial: 5, Ecological: 100, Social: 70})

	t.Run("scores a high risk experiment", func(t *testing.T) {
		exp := &types.Experiment{
			ID:               1,
			ProjectedMetrics: types.Metrics{Financial: 20, Ecological: 90, Social: 75},
			RiskBand:         types.RiskHigh,
			AuditCommitted:   true,
		}

		out, err := assessor.ExecuteTask(TaskInput{
			Request: types.AssessRiskRequest{
				AgentID:      assessor.ID(),
				TargetAgent:  "proposer",
				ExperimentID: 1,
			},
			TargetExperiment: exp,
		})
		require.NoError(t, err)

		assessment, ok := out.(RiskAssessment)
		require.True(t, ok)
		assert.Equal(t, types.RiskHigh, assessment.Band)
		// -30 for the declared band, -10 for the financial projection at
		// 4x the assessor's goal.
		assert.Equal(t, 60.0, assessment.Score)
		assert.Len(t, assessment.Factors, 2)
	})

	t.Run("modest normal experiment scores clean", func(t *testing.T) {
		exp := &types.Experiment{
			ID:               2,
			ProjectedMetrics: types.Metrics{Financial: 5, Ecological: 90, Social: 70},
			RiskBand:         types.RiskNormal,
		}

		out, err := assessor.ExecuteTask(TaskInput{
			Request: types.AssessRiskRequest{
				AgentID:      assessor.ID(),
				TargetAgent:  "proposer",
				ExperimentID: 2,
			},
			TargetExperiment: exp,
		})
		require.NoError(t, err)

		assessment := out.(RiskAssessment)
		assert.Equal(t, types.RiskNormal, assessment.Band)
		assert.Equal(t, 100.0, assessment.Score)
		assert.Empty(t, assessment.Factors)
	})

	t.Run("missing experiment", func(t *testing.T) {
		_, err := assessor.ExecuteTask(TaskInput{
			Request: types.AssessRiskRequest{
				AgentID:      assessor.ID(),
				TargetAgent:  "proposer",
				ExperimentID: 3,
			},
		})
		assert.ErrorIs(t, err, types.ErrExperimentNotFound)
	})
}

func TestGrantHandlerExecute(t *testing.T) {
	a := newTestAgent(t, types.RoleGrant, types.Metrics{Financial: 5, Ecological: 100, Social: 70})

	out, err := a.ExecuteTask(TaskInput{Request: types.DraftProposalRequest{
		AgentID: a.ID(),
		Title:   "Community Resilience Fund",
		Amount:  5000,
		Purpose: "expand the sensor network",
	}})
	require.NoError(t, err)

	draft, ok := out.(GrantDraft)
	require.True(t, ok)
	assert.Equal(t, "Community Resilience Fund", draft.Title)
	assert.Equal(t, 5000.0, draft.Amount)
	assert.Contains(t, draft.Body, "expand the sensor network")
	assert.Contains(t, draft.Body, "## Track Record")
	assert.Len(t, draft.Sections, 4)
}

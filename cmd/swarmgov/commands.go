package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"swarmgov/internal/config"
	"swarmgov/internal/logging"
	"swarmgov/internal/orchestrator"
	"swarmgov/internal/types"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file and seed the default cooperative",
	Long: `Writes the default configuration to the --config path and seeds a
session with one agent per role plus the listed stakeholders.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stakeholders, _ := cmd.Flags().GetStringSlice("stakeholders")

		cfg := config.DefaultConfig()
		if err := cfg.Save(configPath); err != nil {
			return err
		}

		s, err := openSession(false)
		if err != nil {
			return err
		}

		goals := types.Metrics{Financial: 5, Ecological: 100, Social: 70}
		seed := []struct {
			id   string
			role types.Role
		}{
			{"proposer", types.RoleProposal},
			{"assessor", types.RoleRisk},
			{"granter", types.RoleGrant},
		}
		for _, a := range seed {
			if _, err := s.orch.AddAgent(a.id, a.role, goals); err != nil {
				s.store.Close()
				return err
			}
		}
		for _, sh := range stakeholders {
			s.orch.DAO().RegisterStakeholder(sh)
		}

		if err := s.close(); err != nil {
			return err
		}
		fmt.Printf("Initialized %s with %d agents and %d stakeholders\n", configPath, len(seed), len(stakeholders))
		return nil
	},
}

var addAgentCmd = &cobra.Command{
	Use:   "add-agent [id]",
	Short: "Register a new agent in the cooperative",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roleName, _ := cmd.Flags().GetString("role")
		role, err := roleFor(roleName)
		if err != nil {
			return err
		}
		goals, err := metricsFromFlags(cmd)
		if err != nil {
			return err
		}

		s, err := openSession(true)
		if err != nil {
			return err
		}

		if _, err := s.orch.AddAgent(args[0], role, goals); err != nil {
			s.store.Close()
			return err
		}
		fmt.Printf("Agent %s registered as %s\n", args[0], role)
		return s.close()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agents, proposals, pipeline state, and the trust chain length",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(true)
		if err != nil {
			return err
		}
		defer s.store.Close()

		if err := s.orch.TrustGraph().Verify(); err != nil {
			fmt.Printf("WARNING: %v\n", err)
		}
		return printJSON(s.orch.Status())
	},
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline [query]",
	Short: "Advance the task pipeline by one or more transitions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		watch, _ := cmd.Flags().GetBool("watch")

		s, err := openSession(true)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		// Long runs can flip verbosity by editing the config file.
		if watch {
			w, err := config.NewWatcher(configPath, func(cfg *config.Config) {
				logging.SetDebug(cfg.Logging.Level == "debug")
			})
			if err != nil {
				s.store.Close()
				return err
			}
			if err := w.Start(ctx); err != nil {
				s.store.Close()
				return err
			}
			defer w.Stop()
		}

		query := args[0]
		for i := 0; i < steps; i++ {
			fmt.Printf("[%s] %s\n", s.orch.Pipeline().State().Step, s.orch.RunPipeline(ctx, query))
			if ctx.Err() != nil {
				break
			}
		}
		return s.close()
	},
}

var proposeCmd = &cobra.Command{
	Use:   "propose [description]",
	Short: "Propose an experiment on behalf of an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _ := cmd.Flags().GetString("agent")
		highRisk, _ := cmd.Flags().GetBool("high-risk")
		projected, err := metricsFromFlags(cmd)
		if err != nil {
			return err
		}

		s, err := openSession(true)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		out, err := s.orch.RunTask(ctx, types.ProposeRequest{
			AgentID:          agentID,
			Description:      args[0],
			ProjectedMetrics: projected,
			HighRisk:         highRisk,
		})
		if err != nil {
			s.store.Close()
			return err
		}
		if err := printJSON(out); err != nil {
			s.store.Close()
			return err
		}
		return s.close()
	},
}

var attestCmd = &cobra.Command{
	Use:   "attest",
	Short: "Record actual outcome metrics for an experiment",
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _ := cmd.Flags().GetString("agent")
		experimentID, _ := cmd.Flags().GetInt("experiment")
		actual, err := metricsFromFlags(cmd)
		if err != nil {
			return err
		}

		s, err := openSession(true)
		if err != nil {
			return err
		}

		att, err := s.orch.Attest(agentID, experimentID, actual)
		if err != nil {
			s.store.Close()
			return err
		}
		if err := printJSON(att); err != nil {
			s.store.Close()
			return err
		}
		return s.close()
	},
}

var remediateCmd = &cobra.Command{
	Use:   "remediate",
	Short: "Apply corrective metrics to an attested experiment",
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _ := cmd.Flags().GetString("agent")
		experimentID, _ := cmd.Flags().GetInt("experiment")
		newMetrics, err := metricsFromFlags(cmd)
		if err != nil {
			return err
		}

		s, err := openSession(true)
		if err != nil {
			return err
		}

		if err := s.orch.Remediate(agentID, experimentID, newMetrics); err != nil {
			s.store.Close()
			return err
		}
		fmt.Printf("Experiment %d remediated for %s\n", experimentID, agentID)
		return s.close()
	},
}

var corroborateCmd = &cobra.Command{
	Use:   "corroborate",
	Short: "Check an attested experiment against sensor data",
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _ := cmd.Flags().GetString("agent")
		experimentID, _ := cmd.Flags().GetInt("experiment")
		sensor, err := metricsFromFlags(cmd)
		if err != nil {
			return err
		}

		s, err := openSession(true)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		evals, err := s.orch.Corroborate(ctx, []orchestrator.CorroborationRequest{
			{AgentID: agentID, ExperimentID: experimentID, Sensor: sensor},
		})
		if err != nil {
			s.store.Close()
			return err
		}
		if err := printJSON(evals[0]); err != nil {
			s.store.Close()
			return err
		}
		return s.close()
	},
}

var normUpdateCmd = &cobra.Command{
	Use:   "norm-update [description]",
	Short: "Open a DAO proposal to change an agent's goal metrics",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		proposer, _ := cmd.Flags().GetString("proposer")
		target, _ := cmd.Flags().GetString("target")
		partial := partialFromFlags(cmd)

		description := ""
		if len(args) > 0 {
			description = args[0]
		}

		s, err := openSession(true)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		out, err := s.orch.RunTask(ctx, types.NormUpdateRequest{
			ProposerID:  proposer,
			TargetAgent: target,
			NewMetric:   partial,
			Description: description,
		})
		if err != nil {
			s.store.Close()
			return err
		}
		if err := printJSON(out); err != nil {
			s.store.Close()
			return err
		}
		return s.close()
	},
}

var voteCmd = &cobra.Command{
	Use:   "vote",
	Short: "Cast a stakeholder vote on a norm-update proposal",
	RunE: func(cmd *cobra.Command, args []string) error {
		proposalID, _ := cmd.Flags().GetString("proposal")
		stakeholder, _ := cmd.Flags().GetString("stakeholder")
		support, _ := cmd.Flags().GetBool("support")

		s, err := openSession(true)
		if err != nil {
			return err
		}

		p, err := s.orch.Vote(proposalID, stakeholder, support)
		if err != nil {
			s.store.Close()
			return err
		}
		if err := printJSON(p); err != nil {
			s.store.Close()
			return err
		}
		return s.close()
	},
}

// metricsFromFlags reads the three metric flags, defaulting unset ones to zero.
func metricsFromFlags(cmd *cobra.Command) (types.Metrics, error) {
	fin, _ := cmd.Flags().GetFloat64("financial")
	eco, _ := cmd.Flags().GetFloat64("ecological")
	soc, _ := cmd.Flags().GetFloat64("social")
	return types.Metrics{Financial: fin, Ecological: eco, Social: soc}, nil
}

// partialFromFlags reads only the metric flags the caller set.
func partialFromFlags(cmd *cobra.Command) types.PartialMetrics {
	var p types.PartialMetrics
	if cmd.Flags().Changed("financial") {
		v, _ := cmd.Flags().GetFloat64("financial")
		p.Financial = &v
	}
	if cmd.Flags().Changed("ecological") {
		v, _ := cmd.Flags().GetFloat64("ecological")
		p.Ecological = &v
	}
	if cmd.Flags().Changed("social") {
		v, _ := cmd.Flags().GetFloat64("social")
		p.Social = &v
	}
	return p
}

func addMetricFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("financial", 0, "Financial metric value")
	cmd.Flags().Float64("ecological", 0, "Ecological metric value")
	cmd.Flags().Float64("social", 0, "Social metric value")
}

func init() {
	initCmd.Flags().StringSlice("stakeholders", []string{"s1", "s2", "s3"}, "Stakeholder ids to register")

	addAgentCmd.Flags().String("role", "proposal", "Agent role: proposal, risk, or grant")
	addMetricFlags(addAgentCmd)

	pipelineCmd.Flags().Int("steps", 1, "Number of transitions to run")
	pipelineCmd.Flags().Bool("watch", false, "Hot-reload logging level from the config file while running")

	proposeCmd.Flags().String("agent", "proposer", "Proposing agent id")
	proposeCmd.Flags().Bool("high-risk", false, "Declare the experiment high risk")
	addMetricFlags(proposeCmd)

	attestCmd.Flags().String("agent", "proposer", "Attesting agent id")
	attestCmd.Flags().Int("experiment", 1, "Experiment id")
	addMetricFlags(attestCmd)
	_ = attestCmd.MarkFlagRequired("experiment")

	remediateCmd.Flags().String("agent", "proposer", "Agent id")
	remediateCmd.Flags().Int("experiment", 1, "Experiment id")
	addMetricFlags(remediateCmd)

	corroborateCmd.Flags().String("agent", "proposer", "Agent id")
	corroborateCmd.Flags().Int("experiment", 1, "Experiment id")
	addMetricFlags(corroborateCmd)

	normUpdateCmd.Flags().String("proposer", "", "Proposing stakeholder id")
	normUpdateCmd.Flags().String("target", "", "Target agent id")
	addMetricFlags(normUpdateCmd)
	_ = normUpdateCmd.MarkFlagRequired("proposer")
	_ = normUpdateCmd.MarkFlagRequired("target")

	voteCmd.Flags().String("proposal", "", "Proposal id")
	voteCmd.Flags().String("stakeholder", "", "Stakeholder id")
	voteCmd.Flags().Bool("support", false, "Vote in favor")
	_ = voteCmd.MarkFlagRequired("proposal")
	_ = voteCmd.MarkFlagRequired("stakeholder")
}

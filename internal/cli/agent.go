package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Inspect and manage agents",
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents with their status and fairness clock",
	RunE: func(cmd *cobra.Command, args []string) error {
		agents, err := rt.Engine.Directory.List(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tROLE\tSTATUS\tLAST ASSIGNED")
		for _, a := range agents {
			last := "never"
			if a.LastAssignedAt != nil {
				last = a.LastAssignedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Name, a.Role, a.Status, last)
		}
		return w.Flush()
	},
}

var agentDeactivateCmd = &cobra.Command{
	Use:   "deactivate <agent-id>",
	Short: "Mark an agent INACTIVE and return their open tickets to the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := rt.Engine.Directory.Deactivate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "agent %s is %s\n", agent.ID, agent.Status)
		return nil
	},
}

func init() {
	agentCmd.AddCommand(agentListCmd)
	agentCmd.AddCommand(agentDeactivateCmd)
}

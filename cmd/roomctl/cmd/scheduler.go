package cmd

import (
	"roomplane/pkg/api"

	"github.com/spf13/cobra"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Show, pause or resume the phase scheduler",
	Long:  `While disabled, registered jobs are kept but none fire. Jobs that came due while disabled fire as soon as the scheduler is enabled again.`,
}

var schedulerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show scheduler state and pending jobs",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client, ok := newClientFromConfig(cmd)
		if !ok {
			return
		}
		state, err := client.Scheduler()
		if err != nil {
			cmd.Printf("Failed to get scheduler state: %v\n", err)
			return
		}
		printScheduler(cmd, state, true)
	},
}

var schedulerEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Resume firing phase jobs",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		setScheduler(cmd, true)
	},
}

var schedulerDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Stop firing phase jobs",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		setScheduler(cmd, false)
	},
}

func setScheduler(cmd *cobra.Command, enabled bool) {
	client, ok := newClientFromConfig(cmd)
	if !ok {
		return
	}
	state, err := client.SetScheduler(enabled)
	if err != nil {
		cmd.Printf("Failed to update scheduler: %v\n", err)
		return
	}
	printScheduler(cmd, state, false)
}

func printScheduler(cmd *cobra.Command, state *api.SchedulerStateResponse, withJobs bool) {
	cmd.Printf("%sScheduler:%s    %s\n", colorDim, colorReset, enabledLabel(state.Enabled))
	cmd.Printf("%sPending jobs:%s %d\n", colorDim, colorReset, state.Pending)
	if !withJobs || len(state.Jobs) == 0 {
		return
	}

	cmd.Println()
	cmd.Printf("%-60s  %s\n", "KEY", "RUN AT")
	cmd.Println("──────────────────────────────────────────────────────────────────────────────────────────")
	for _, j := range state.Jobs {
		runAt := j.RunAt
		line := formatTimeWithRelative(&runAt)
		if j.Interval != "" {
			line += " every " + j.Interval
		}
		cmd.Printf("%-60s  %s\n", j.Key, line)
	}
}

func init() {
	schedulerCmd.AddCommand(schedulerShowCmd, schedulerEnableCmd, schedulerDisableCmd)
	rootCmd.AddCommand(schedulerCmd)
}

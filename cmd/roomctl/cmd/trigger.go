package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// phases accepted by the admin API's room trigger routes.
var phases = []string{"schedule", "build", "notify", "start", "cleanup", "launch"}

var triggerLead int

var triggerCmd = &cobra.Command{
	Use:   "trigger [phase] [room_id]",
	Short: "Run a room phase immediately",
	Long: `Run one phase for a room right now, outside its schedule. The command waits until the phase finishes.

Phases:
  schedule   register (or re-register) the room's phase jobs
  build      compose and write the playlist
  notify     send the reminder wave for --lead minutes
  start      launch the stream and mark the room live
  cleanup    stop the stream and complete the room
  launch     build then start (ad-hoc private rooms)`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		phase, roomID := strings.ToLower(args[0]), args[1]
		if !validPhase(phase) {
			cmd.Printf("Unknown phase %q. Valid phases: %s\n", phase, strings.Join(phases, ", "))
			return
		}
		if phase == "notify" && triggerLead <= 0 {
			cmd.Println("--lead is required for notify and must be a positive number of minutes")
			return
		}

		client, ok := newClientFromConfig(cmd)
		if !ok {
			return
		}

		if phase == "schedule" {
			resp, err := client.Schedule(roomID)
			if err != nil {
				cmd.Printf("Failed to schedule room: %v\n", err)
				return
			}
			cmd.Printf("%s✓%s Room %s scheduled with %d jobs\n", colorGreen, colorReset, resp.RoomID, len(resp.Jobs))
			for _, j := range resp.Jobs {
				runAt := j.RunAt
				cmd.Printf("  %-60s %s\n", j.Key, formatTimeWithRelative(&runAt))
			}
			return
		}

		resp, err := client.Trigger(phase, roomID, triggerLead)
		if err != nil {
			cmd.Printf("%s✗%s Phase %s failed: %v\n", colorRed, colorReset, phase, err)
			return
		}
		cmd.Printf("%s✓%s %s\n", colorGreen, colorReset, describeTrigger(resp.Phase, resp.RoomID))
	},
}

func validPhase(phase string) bool {
	for _, p := range phases {
		if p == phase {
			return true
		}
	}
	return false
}

func describeTrigger(phase, roomID string) string {
	if phase == "notify" {
		return fmt.Sprintf("Reminders (%d min) sent for room %s", triggerLead, roomID)
	}
	return fmt.Sprintf("Phase %s completed for room %s", phase, roomID)
}

func init() {
	triggerCmd.Flags().IntVarP(&triggerLead, "lead", "l", 0, "Lead time in minutes (notify only)")
	rootCmd.AddCommand(triggerCmd)
}

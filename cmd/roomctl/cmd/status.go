package cmd

import (
	"fmt"
	"sort"
	"time"

	"roomplane/pkg/api"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show room counts, recent rooms and live streams",
	Long:  `Retrieve the aggregate orchestrator view: whether the scheduler is firing, how many rooms are in each status (scheduled, building, live, completed), the 50 most recent rooms and the streams currently running.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client, ok := newClientFromConfig(cmd)
		if !ok {
			return
		}

		status, err := client.RoomsStatus()
		if err != nil {
			cmd.Printf("Failed to get status: %v\n", err)
			return
		}
		printRoomsStatus(cmd, status)
	},
}

func printRoomsStatus(cmd *cobra.Command, status *api.RoomsStatusResponse) {
	cmd.Printf("%sScheduler:%s    %s\n", colorDim, colorReset, enabledLabel(status.Enabled))
	cmd.Printf("%sPending jobs:%s %d\n", colorDim, colorReset, status.PendingJobs)
	cmd.Printf("%sLive streams:%s %d\n", colorDim, colorReset, len(status.LiveStreams))

	statuses := make([]string, 0, len(status.Counts))
	for s := range status.Counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		cmd.Printf("  %s %d\n", colorizeStatus(s), status.Counts[s])
	}

	if len(status.Rooms) == 0 {
		cmd.Println("No rooms found")
		return
	}

	cmd.Println()
	cmd.Printf("%-36s  %-22s  %-5s  %-6s  %s\n", "ID", "STATUS", "NIGHT", "RAKATS", "ANCHOR")
	cmd.Println("──────────────────────────────────────────────────────────────────────────────────────────")
	for _, r := range status.Rooms {
		cmd.Printf("%-36s  %-22s  %-5d  %-6d  %s\n", r.ID, colorizeStatus(r.Status), r.Night, r.Rakats, formatTimeWithRelative(&r.AnchorAt))
	}
}

func enabledLabel(enabled bool) string {
	if enabled {
		return colorGreen + "enabled" + colorReset
	}
	return colorYellow + "disabled" + colorReset
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "completed":
		return colorGreen + "✓" + colorReset
	case "live":
		return colorRed + "●" + colorReset
	case "building":
		return colorYellow + "⏳" + colorReset
	case "scheduled":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "completed":
		return icon + " " + colorGreen + status + colorReset
	case "live":
		return icon + " " + colorRed + status + colorReset
	case "building":
		return icon + " " + colorYellow + status + colorReset
	case "scheduled":
		return icon + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprintf("%s %s(%s)%s", t.Format("Mon, 02 Jan 2006 15:04 MST"), colorDim, relativeTime(*t), colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)
	suffix := "ago"
	if duration < 0 {
		duration = -duration
		suffix = "from now"
	}

	var amount string
	if duration < time.Minute {
		amount = fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		amount = fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		amount = fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			amount = "1 day"
		} else {
			amount = fmt.Sprintf("%d days", days)
		}
	}
	return amount + " " + suffix
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

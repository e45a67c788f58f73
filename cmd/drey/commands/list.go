package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	listJSON bool
)

// roomInfo mirrors one entry of the host's /rooms listing.
type roomInfo struct {
	ID           string `json:"id"`
	Users        int    `json:"users"`
	Status       string `json:"status"`
	LastActivity string `json:"last_activity,omitempty"`
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List rooms on the drey host",
	Long: `List the rooms hosted by the drey host.

For each room, displays:
  • Room ID
  • Connected user count
  • Watchdog status (armed/expired/shutdown_requested/disabled)
  • Last activity time

Use --json for machine-readable output.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	resp, err := http.Get(hostAddr + "/rooms")
	if err != nil {
		return fmt.Errorf("failed to reach drey host at %s: %w", hostAddr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("drey host returned %s", resp.Status)
	}

	var infos []roomInfo
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		return fmt.Errorf("failed to decode room listing: %w", err)
	}

	if len(infos) == 0 {
		if listJSON {
			fmt.Println("[]")
		} else {
			fmt.Println("No rooms hosted.")
		}
		return nil
	}

	if listJSON {
		data, err := json.MarshalIndent(infos, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ROOM", "USERS", "STATUS", "LAST ACTIVITY")
	for _, info := range infos {
		lastActivity := "-"
		if info.LastActivity != "" {
			if t, err := time.Parse(time.RFC3339, info.LastActivity); err == nil {
				lastActivity = t.Local().Format("2006-01-02 15:04:05")
			} else {
				lastActivity = info.LastActivity
			}
		}
		table.Append(info.ID, fmt.Sprintf("%d", info.Users), info.Status, lastActivity)
	}
	table.Render()

	return nil
}

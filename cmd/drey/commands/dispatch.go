package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dyluth/drey/internal/printer"
	"github.com/spf13/cobra"
)

var (
	dispatchPayload string
	dispatchUserID  string
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <room> <event-type>",
	Short: "Dispatch an event into a room",
	Long: `Dispatch an event into a room's reducer pipeline.

The payload is JSON and depends on the event type. The host stamps the
event ID and timestamp; only type and payload are sent.

Examples:
  # Post a chat message
  drey dispatch design-review chat:post --payload '{"message":{"id":"m1","body":"hello"}}' --user cam

  # Freeze a room's inactivity watchdog
  drey dispatch design-review lifecycle:disable`,
	Args: cobra.ExactArgs(2),
	RunE: runDispatch,
}

func init() {
	dispatchCmd.Flags().StringVarP(&dispatchPayload, "payload", "p", "", "Event payload as JSON")
	dispatchCmd.Flags().StringVarP(&dispatchUserID, "user", "u", "", "User ID to attribute the event to")
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	roomID, eventType := args[0], args[1]

	if dispatchPayload != "" && !json.Valid([]byte(dispatchPayload)) {
		return fmt.Errorf("payload is not valid JSON")
	}

	body := map[string]any{"type": eventType}
	if dispatchPayload != "" {
		body["payload"] = json.RawMessage(dispatchPayload)
	}
	if dispatchUserID != "" {
		body["user_id"] = dispatchUserID
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/rooms/%s/events", hostAddr, roomID)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to reach drey host at %s: %w", hostAddr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &errBody) == nil && errBody.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, errBody.Error)
		}
		return fmt.Errorf("drey host returned %s", resp.Status)
	}

	var ok struct {
		EventID string `json:"event_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ok); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	printer.Success("dispatched %s to room '%s' (event %s)\n", eventType, roomID, ok.EventID)
	return nil
}

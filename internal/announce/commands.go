package announce

import (
	"context"
	"encoding/json"
	"fmt"
)

// command is the wire format of an inbound device command message.
type command struct {
	Action string `json:"action"`
}

// Supported command actions.
const (
	actionWake        = "wake"
	actionShowNext    = "show_next"
	actionSleep       = "sleep"
	actionReboot      = "reboot"
	actionClearScreen = "clear_screen"
	actionRefresh     = "refresh"
)

// handleCommand dispatches one inbound command message. Unknown
// actions are rejected rather than ignored so a typo in a publishing
// automation shows up in the logs.
func (a *Announcer) handleCommand(topic string, payload []byte) error {
	var cmd command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("announce: malformed command payload: %w", err)
	}

	a.logger.Info("command received", "action", cmd.Action, "topic", topic)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var err error
	switch cmd.Action {
	case actionWake:
		err = a.device.Wake(ctx)
	case actionShowNext:
		err = a.device.ShowNext(ctx)
	case actionSleep:
		err = a.device.Sleep(ctx)
	case actionReboot:
		err = a.device.Reboot(ctx)
	case actionClearScreen:
		err = a.device.ClearScreen(ctx)
	case actionRefresh:
		_, err = a.device.RefreshStatus(ctx)
	default:
		return fmt.Errorf("announce: unknown command action %q", cmd.Action)
	}

	if err != nil {
		return fmt.Errorf("announce: command %s: %w", cmd.Action, err)
	}
	return nil
}

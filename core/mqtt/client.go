package mqtt

import (
	"time"

	"github.com/kilianp07/kioskpower/core/powerplan"
)

// Plan is the message a terminal receives on its schedule topic.
type Plan struct {
	CommandID string           `json:"command_id"`
	ClientID  string           `json:"client_id"`
	Date      string           `json:"date"`
	Actions   []powerplan.Step `json:"actions"`
}

// Publisher delivers day plans to terminals and tracks their
// acknowledgments.
type Publisher interface {
	// SendPlan publishes plan to the terminal identified by uniqueID and
	// returns the command identifier used to track the acknowledgment.
	SendPlan(uniqueID string, plan Plan) (commandID string, err error)

	// WaitForAck waits for an acknowledgment for the provided command
	// identifier or until the timeout expires.
	WaitForAck(commandID string, timeout time.Duration) (bool, error)
}

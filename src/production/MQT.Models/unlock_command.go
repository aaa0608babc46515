package mqtmodels

// ActionUnlock is the only command action lockers understand today.
const ActionUnlock = "unlock"

// UnlockCommand is built per request, published once and forgotten.
// LockerID only selects the topic and is not part of the wire payload.
type UnlockCommand struct {
	CmdID      string `json:"cmd_id"`
	LockerID   string `json:"-"`
	Action     string `json:"action"`
	DurationMs int    `json:"duration_ms"`
}

// DispatchResult is what a caller gets back once the command has been
// handed to the transport. It says nothing about the door.
type DispatchResult struct {
	Sent    bool          `json:"sent"`
	Topic   string        `json:"topic"`
	Payload UnlockCommand `json:"payload"`
}

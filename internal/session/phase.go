package session

import "fmt"

// Phase is the controller's current state. Exactly one holds at a time.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRecording
	PhaseProcessing
	PhaseSpeaking
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRecording:
		return "recording"
	case PhaseProcessing:
		return "processing"
	case PhaseSpeaking:
		return "speaking"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText encodes the phase by name
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*p = PhaseIdle
	case "recording":
		*p = PhaseRecording
	case "processing":
		*p = PhaseProcessing
	case "speaking":
		*p = PhaseSpeaking
	default:
		return fmt.Errorf("unknown phase %q", text)
	}
	return nil
}

// Action is what a trigger resolved to
type Action string

const (
	ActionStart    Action = "start"
	ActionStop     Action = "stop"
	ActionCancel   Action = "cancel"
	ActionRejected Action = "rejected"
)

// Status is an observable snapshot of the session
type Status struct {
	Phase      Phase  `json:"phase"`
	LastError  string `json:"lastError,omitempty"`
	SessionID  string `json:"sessionId"`
	Turn       int    `json:"turn"`
	Transcript string `json:"transcript,omitempty"`
	Reply      string `json:"reply,omitempty"`
}

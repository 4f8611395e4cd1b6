package broadcast

import (
	"encoding/json"
	"fmt"
)

// Action is the verb of a client control frame.
type Action string

const (
	ActionSubscribe   Action = "subscribe"
	ActionUnsubscribe Action = "unsubscribe"
)

// ControlFrame is the message a client sends to manage its subscriptions:
//
//	{"action":"subscribe","channel":"tasks"}
type ControlFrame struct {
	Action  Action `json:"action"`
	Channel string `json:"channel"`
}

// protocolError marks a frame that is ignored. Reason is used as a metric label.
type protocolError struct {
	Reason string
	Err    error
}

func (e *protocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *protocolError) Unwrap() error { return e.Err }

func parseControlFrame(data []byte) (ControlFrame, error) {
	var frame ControlFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return ControlFrame{}, &protocolError{Reason: "malformed", Err: err}
	}

	switch frame.Action {
	case "":
		return ControlFrame{}, &protocolError{Reason: "missing_action"}
	case ActionSubscribe, ActionUnsubscribe:
	default:
		return ControlFrame{}, &protocolError{Reason: "unknown_action", Err: fmt.Errorf("action %q", frame.Action)}
	}

	if frame.Channel == "" {
		return ControlFrame{}, &protocolError{Reason: "missing_channel"}
	}
	return frame, nil
}

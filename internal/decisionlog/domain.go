package decisionlog

import "time"

// Entry kinds.
const (
	KindAccess = "access"
	KindShare  = "share"
	KindEvent  = "event"
)

// Entry is one recorded security decision or event.
type Entry struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	ActorID   string         `json:"actorId"`
	TargetID  string         `json:"targetId,omitempty"`
	Resource  string         `json:"resource,omitempty"`
	Action    string         `json:"action,omitempty"`
	Granted   bool           `json:"granted"`
	Reason    string         `json:"reason"`
	Strategy  string         `json:"strategy,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

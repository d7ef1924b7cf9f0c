package models

import "time"

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChangeEvent is one committed mutation of the alert table as delivered to
// feed subscribers. New is nil for deletes, Old is nil for inserts.
type ChangeEvent struct {
	Type   EventType `json:"eventType"`
	New    *Alert    `json:"new"`
	Old    *Alert    `json:"old"`
	Seq    uint64    `json:"seq"`
	Origin string    `json:"origin,omitempty"`
	At     time.Time `json:"at"`
}

// AlertID returns the id of the row the event refers to.
func (e ChangeEvent) AlertID() string {
	if e.New != nil {
		return e.New.ID
	}
	if e.Old != nil {
		return e.Old.ID
	}
	return ""
}

// WireEvent is the change-feed payload exchanged with external consumers.
type WireEvent struct {
	Type   EventType `json:"eventType"`
	New    *Row      `json:"new"`
	Old    *Row      `json:"old"`
	Origin string    `json:"origin,omitempty"`
}

// ToWire converts the event to its wire shape.
func (e ChangeEvent) ToWire() WireEvent {
	w := WireEvent{Type: e.Type, Origin: e.Origin}
	if e.New != nil {
		r := e.New.ToRow()
		w.New = &r
	}
	if e.Old != nil {
		r := e.Old.ToRow()
		w.Old = &r
	}
	return w
}

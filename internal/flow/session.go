// internal/flow/session.go
//
// Conversation state for the submission collection flow.
//
// Context
// -------
// A Session is one user's in-progress report.  It is an explicit State plus
// the Data gathered so far, keyed by the chat session id.  Sessions are
// plain values so they can be stored in memory or serialised to Redis.
//
//	category → location → region → city → street → text
//	         → photo → solution (complaints only) → name → confirm
//
// A device location jumps straight from location to street.
package flow

import (
	"time"

	"github.com/publicpulse/pulse/internal/record"
)

// State is a step of the flow.
type State string

const (
	StateCategory State = "category"
	StateLocation State = "location"
	StateRegion   State = "region"
	StateCity     State = "city"
	StateStreet   State = "street"
	StateText     State = "text"
	StatePhoto    State = "photo"
	StateSolution State = "solution"
	StateName     State = "name"
	StateConfirm  State = "confirm"
	// StateDone is reported once a session ended (submitted or cancelled).
	StateDone State = "done"
)

// Data is what the user has entered so far.
type Data struct {
	Category  record.Category `json:"category,omitempty"`
	Region    string          `json:"region,omitempty"`
	City      string          `json:"city,omitempty"`
	Lat       *float64        `json:"latitude,omitempty"`
	Lng       *float64        `json:"longitude,omitempty"`
	Street    string          `json:"street,omitempty"`
	Text      string          `json:"text,omitempty"`
	Photo     []byte          `json:"photo,omitempty"`
	PhotoType string          `json:"photo_type,omitempty"`
	Solution  string          `json:"solution,omitempty"`
	Name      string          `json:"name,omitempty"`
}

// HasDeviceLocation reports whether coordinates were shared.
func (d Data) HasDeviceLocation() bool { return d.Lat != nil && d.Lng != nil }

func (d *Data) clearPlace() {
	d.Region, d.City, d.Lat, d.Lng = "", "", nil, nil
}

// Session is a user's flow instance.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Language  string    `json:"language,omitempty"`
	State     State     `json:"state"`
	Data      Data      `json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
}

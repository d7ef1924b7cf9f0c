// Package geo turns client geolocation readings into alert positions and plans
// the map view shown on admin dashboards.
package geo

import (
	"errors"
	"fmt"

	"github.com/garnizeh/campuscare/internal/models"
)

// Reading error codes reported by clients when the device could not produce a
// fix.
const (
	ReasonPermissionDenied = "permission_denied"
	ReasonTimeout          = "timeout"
	ReasonUnsupported      = "unsupported"
)

// ErrLocationUnavailable means the alert goes out without coordinates. It is
// never fatal for a submission.
var ErrLocationUnavailable = errors.New("location unavailable")

// Reading is the one-shot geolocation result a client sends with a submission.
// Bad coordinates are not a validation failure: they only cost the alert its
// position.
type Reading struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  float64  `json:"accuracy,omitempty" validate:"gte=0"`
	Error     string   `json:"error,omitempty" validate:"max=64"`
}

// Position is a finite point in degrees.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// Capture validates a reading. There are no retries: a missing, failed or
// out-of-range reading yields ErrLocationUnavailable wrapped with the reason.
func Capture(r *Reading) (Position, error) {
	if r == nil {
		return Position{}, fmt.Errorf("%w: %s", ErrLocationUnavailable, ReasonUnsupported)
	}
	if r.Error != "" {
		return Position{}, fmt.Errorf("%w: %s", ErrLocationUnavailable, r.Error)
	}
	if r.Latitude == nil || r.Longitude == nil {
		return Position{}, fmt.Errorf("%w: incomplete reading", ErrLocationUnavailable)
	}
	if !models.ValidCoordinates(*r.Latitude, *r.Longitude) {
		return Position{}, fmt.Errorf("%w: invalid coordinates", ErrLocationUnavailable)
	}
	return Position{Latitude: *r.Latitude, Longitude: *r.Longitude, Accuracy: r.Accuracy}, nil
}

// Label is the location text stored with an alert.
func Label(pos *Position) string {
	if pos == nil || !models.ValidCoordinates(pos.Latitude, pos.Longitude) {
		return models.LocationUnavailableLabel
	}
	return models.MapsLink(pos.Latitude, pos.Longitude)
}

package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type AlertStatus string

const (
	StatusActive    AlertStatus = "active"
	StatusResolved  AlertStatus = "resolved"
	StatusCancelled AlertStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s AlertStatus) Valid() bool {
	switch s {
	case StatusActive, StatusResolved, StatusCancelled:
		return true
	}
	return false
}

const (
	LocationUnavailableLabel = "Location not available"
	UnknownName              = "Unknown"
)

// Alert is the canonical emergency alert used everywhere past the store
// boundary. Identity fields are a snapshot taken at submission time.
type Alert struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	DisplayName    string         `json:"display_name"`
	RollOrID       string         `json:"roll_or_id"`
	UserType       string         `json:"user_type,omitempty"`
	Status         AlertStatus    `json:"status"`
	Location       string         `json:"location,omitempty"`
	Latitude       *float64       `json:"latitude"`
	Longitude      *float64       `json:"longitude"`
	AdditionalInfo map[string]any `json:"additional_info,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy     string         `json:"resolved_by,omitempty"`
}

// Active reports whether the alert still needs attention.
func (a Alert) Active() bool { return a.Status == StatusActive }

// Resolved reports whether the alert has left the active state.
func (a Alert) Resolved() bool { return !a.Active() }

// Coordinates returns the alert position when both components are present,
// finite and inside the valid degree ranges.
func (a Alert) Coordinates() (lat, lon float64, ok bool) {
	if a.Latitude == nil || a.Longitude == nil {
		return 0, 0, false
	}
	lat, lon = *a.Latitude, *a.Longitude
	if !ValidCoordinates(lat, lon) {
		return 0, 0, false
	}
	return lat, lon, true
}

// LocationLabel prefers a free-text address over raw coordinates.
func (a Alert) LocationLabel() string {
	if addr, ok := a.AdditionalInfo["address"].(string); ok && strings.TrimSpace(addr) != "" {
		return addr
	}
	if a.Location != "" {
		return a.Location
	}
	if lat, lon, ok := a.Coordinates(); ok {
		return MapsLink(lat, lon)
	}
	return LocationUnavailableLabel
}

// Clone returns a deep enough copy for handing alerts across goroutines.
func (a Alert) Clone() Alert {
	c := a
	if a.Latitude != nil {
		v := *a.Latitude
		c.Latitude = &v
	}
	if a.Longitude != nil {
		v := *a.Longitude
		c.Longitude = &v
	}
	if a.ResolvedAt != nil {
		v := *a.ResolvedAt
		c.ResolvedAt = &v
	}
	if a.AdditionalInfo != nil {
		c.AdditionalInfo = make(map[string]any, len(a.AdditionalInfo))
		for k, v := range a.AdditionalInfo {
			c.AdditionalInfo[k] = v
		}
	}
	return c
}

// ValidCoordinates reports whether lat/lon are finite and within range.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// MapsLink renders the location label stored for alerts that have coordinates.
func MapsLink(lat, lon float64) string {
	return fmt.Sprintf("https://maps.google.com/?q=%.6f,%.6f", lat, lon)
}

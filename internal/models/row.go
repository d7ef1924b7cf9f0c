package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedRow is returned when a raw row cannot be turned into an Alert.
var ErrMalformedRow = errors.New("malformed alert row")

// Row is the storage/wire shape of an alert, the one contract external tooling
// relies on.
type Row struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	UserName       string         `json:"user_name"`
	UserType       string         `json:"user_type"`
	Status         AlertStatus    `json:"status"`
	Location       *string        `json:"location"`
	Latitude       *float64       `json:"latitude"`
	Longitude      *float64       `json:"longitude"`
	AdditionalInfo map[string]any `json:"additional_info"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy     *string        `json:"resolved_by,omitempty"`
}

// ToRow converts the canonical alert to its wire shape. The roll number travels
// inside additional_info.
func (a Alert) ToRow() Row {
	c := a.Clone()
	r := Row{
		ID:         c.ID,
		UserID:     c.UserID,
		UserName:   c.DisplayName,
		UserType:   c.UserType,
		Status:     c.Status,
		Latitude:   c.Latitude,
		Longitude:  c.Longitude,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
		ResolvedAt: c.ResolvedAt,
	}
	if c.Location != "" {
		loc := c.Location
		r.Location = &loc
	}
	if c.ResolvedBy != "" {
		by := c.ResolvedBy
		r.ResolvedBy = &by
	}
	info := c.AdditionalInfo
	if c.RollOrID != "" {
		if info == nil {
			info = map[string]any{}
		}
		info["roll_number"] = c.RollOrID
	}
	r.AdditionalInfo = info
	return r
}

// ToAlert converts a typed row through the same normalization applied to raw rows.
func (r Row) ToAlert() (Alert, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return Alert{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return Alert{}, err
	}
	return NormalizeRow(raw)
}

var (
	latitudeKeys  = []string{"latitude", "lat", "location_lat", "coords_lat"}
	longitudeKeys = []string{"longitude", "lon", "lng", "location_lng", "location_lon", "coords_lng", "coords_lon"}
)

// NormalizeRow turns a loosely shaped row (legacy aliases, string numbers,
// epoch timestamps) into the canonical Alert. Missing or non-finite
// coordinates become nil rather than an error.
func NormalizeRow(raw map[string]any) (Alert, error) {
	if raw == nil {
		return Alert{}, fmt.Errorf("%w: empty row", ErrMalformedRow)
	}
	a := Alert{
		ID:     stringField(raw, "id"),
		UserID: stringField(raw, "user_id"),
	}
	if a.ID == "" {
		return Alert{}, fmt.Errorf("%w: missing id", ErrMalformedRow)
	}
	if a.UserID == "" {
		return Alert{}, fmt.Errorf("%w: missing user_id for %s", ErrMalformedRow, a.ID)
	}

	info, _ := raw["additional_info"].(map[string]any)
	if len(info) > 0 {
		a.AdditionalInfo = make(map[string]any, len(info))
		for k, v := range info {
			a.AdditionalInfo[k] = v
		}
	}

	a.DisplayName = firstString(stringField(raw, "user_name"), stringField(raw, "display_name"), stringField(info, "full_name"), stringField(raw, "name"))
	if a.DisplayName == "" {
		a.DisplayName = UnknownName
	}
	a.RollOrID = firstString(stringField(raw, "roll_or_id"), stringField(info, "roll_number"), stringField(info, "roll_no"), stringField(raw, "roll_number"))
	a.UserType = stringField(raw, "user_type")
	a.Location = stringField(raw, "location")

	a.Status = AlertStatus(strings.ToLower(stringField(raw, "status")))
	if a.Status == "" {
		if resolved, ok := raw["resolved"].(bool); ok && resolved {
			a.Status = StatusResolved
		} else {
			a.Status = StatusActive
		}
	}
	if !a.Status.Valid() {
		return Alert{}, fmt.Errorf("%w: unknown status %q", ErrMalformedRow, a.Status)
	}

	lat, latOK := firstNumber(raw, info, latitudeKeys)
	lon, lonOK := firstNumber(raw, info, longitudeKeys)
	if latOK && lonOK && ValidCoordinates(lat, lon) {
		a.Latitude, a.Longitude = &lat, &lon
	}

	var err error
	if a.CreatedAt, err = timeField(raw, "created_at"); err != nil {
		return Alert{}, fmt.Errorf("%w: created_at: %v", ErrMalformedRow, err)
	}
	if a.CreatedAt.IsZero() {
		return Alert{}, fmt.Errorf("%w: missing created_at for %s", ErrMalformedRow, a.ID)
	}
	if a.UpdatedAt, err = timeField(raw, "updated_at"); err != nil || a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	if t, err := timeField(raw, "resolved_at"); err == nil && !t.IsZero() {
		a.ResolvedAt = &t
	}
	a.ResolvedBy = stringField(raw, "resolved_by")

	return a, nil
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNumber(raw, info map[string]any, keys []string) (float64, bool) {
	for _, m := range []map[string]any{raw, info} {
		if m == nil {
			continue
		}
		for _, k := range keys {
			if f, ok := toFloat(m[k]); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		p, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func timeField(m map[string]any, key string) (time.Time, error) {
	switch v := m[key].(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v.UTC(), nil
	case string:
		if v == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	default:
		// numeric values are epoch milliseconds
		ms, ok := toFloat(v)
		if !ok {
			return time.Time{}, fmt.Errorf("unsupported time value %T", v)
		}
		return time.UnixMilli(int64(ms)).UTC(), nil
	}
}

package geo

import (
	"math"

	"github.com/garnizeh/campuscare/internal/config"
	"github.com/garnizeh/campuscare/internal/models"
)

type MarkerKind string

const (
	MarkerAlert MarkerKind = "alert"
	MarkerSelf  MarkerKind = "self"
)

type MarkerStyle string

const (
	StyleActive MarkerStyle = "active"
	StyleMuted  MarkerStyle = "muted"
)

type ViewMode string

const (
	ModeFocus   ViewMode = "focus"
	ModeFit     ViewMode = "fit"
	ModeDefault ViewMode = "default"
)

type Marker struct {
	AlertID   string      `json:"alert_id,omitempty"`
	Latitude  float64     `json:"latitude"`
	Longitude float64     `json:"longitude"`
	Kind      MarkerKind  `json:"kind"`
	Style     MarkerStyle `json:"style"`
	Label     string      `json:"label"`
}

// Bounds is a south-west/north-east box in degrees.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Viewport is the pixel size of the map container.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (v Viewport) zero() bool { return v.Width <= 0 || v.Height <= 0 }

// Focus narrows the view to one alert. Self adds the viewer's own position as
// an extra marker.
type Focus struct {
	AlertID string
	Self    *Position
}

// MapView is everything a tile map client needs to draw the dashboard map.
type MapView struct {
	Mode     ViewMode `json:"mode"`
	Center   Position `json:"center"`
	Zoom     float64  `json:"zoom"`
	Bounds   *Bounds  `json:"bounds,omitempty"`
	Markers  []Marker `json:"markers"`
	FocusID  string   `json:"focus_id,omitempty"`
	Viewport Viewport `json:"viewport"`
}

// Planner computes map views. It holds no state between calls.
type Planner struct {
	cfg config.MapConfig
}

func NewPlanner(cfg config.MapConfig) *Planner {
	if cfg.TileSize <= 0 {
		cfg.TileSize = 256
	}
	if cfg.MaxZoom <= 0 {
		cfg.MaxZoom = 18
	}
	if cfg.FocusZoom <= 0 {
		cfg.FocusZoom = 16
	}
	if cfg.SinglePointZoom <= 0 {
		cfg.SinglePointZoom = 15
	}
	return &Planner{cfg: cfg}
}

// Plan builds the view for alerts. Only alerts with valid coordinates become
// markers; the rest stay visible in the list but are never plotted. A zero
// viewport is planned as a single tile.
func (p *Planner) Plan(alerts []models.Alert, focus *Focus, vp Viewport) MapView {
	markers := make([]Marker, 0, len(alerts)+1)
	for _, a := range alerts {
		lat, lon, ok := a.Coordinates()
		if !ok {
			continue
		}
		style := StyleActive
		if a.Resolved() {
			style = StyleMuted
		}
		markers = append(markers, Marker{
			AlertID:   a.ID,
			Latitude:  lat,
			Longitude: lon,
			Kind:      MarkerAlert,
			Style:     style,
			Label:     a.DisplayName,
		})
	}
	var focusID string
	if focus != nil {
		focusID = focus.AlertID
		if s := focus.Self; s != nil && models.ValidCoordinates(s.Latitude, s.Longitude) {
			markers = append(markers, Marker{Latitude: s.Latitude, Longitude: s.Longitude, Kind: MarkerSelf, Style: StyleActive, Label: "You"})
		}
	}
	if vp.zero() {
		ts := int(p.cfg.TileSize)
		vp = Viewport{Width: ts, Height: ts}
	}
	return p.layout(markers, focusID, vp)
}

// Resize re-plans view for a new container size. A zero viewport means the
// container is hidden and the previous view is kept.
func (p *Planner) Resize(view MapView, vp Viewport) MapView {
	if vp.zero() {
		return view
	}
	return p.layout(view.Markers, view.FocusID, vp)
}

func (p *Planner) layout(markers []Marker, focusID string, vp Viewport) MapView {
	view := MapView{Markers: markers, Viewport: vp}

	if focusID != "" {
		for _, m := range markers {
			if m.Kind == MarkerAlert && m.AlertID == focusID {
				view.Mode = ModeFocus
				view.FocusID = focusID
				view.Center = Position{Latitude: m.Latitude, Longitude: m.Longitude}
				view.Zoom = p.clamp(p.cfg.FocusZoom)
				return view
			}
		}
	}

	if len(markers) == 0 {
		view.Mode = ModeDefault
		view.Center = Position{Latitude: p.cfg.DefaultLat, Longitude: p.cfg.DefaultLon}
		view.Zoom = p.clamp(p.cfg.DefaultZoom)
		return view
	}

	b := Bounds{South: 90, West: 180, North: -90, East: -180}
	for _, m := range markers {
		b.South = math.Min(b.South, m.Latitude)
		b.North = math.Max(b.North, m.Latitude)
		b.West = math.Min(b.West, m.Longitude)
		b.East = math.Max(b.East, m.Longitude)
	}
	view.Mode = ModeFit
	view.Bounds = &b

	x0, y0 := project(b.North, b.West)
	x1, y1 := project(b.South, b.East)
	lat, lon := unproject((x0+x1)/2, (y0+y1)/2)
	view.Center = Position{Latitude: lat, Longitude: lon}

	dx, dy := x1-x0, y1-y0
	if dx == 0 && dy == 0 {
		view.Zoom = p.clamp(p.cfg.SinglePointZoom)
		return view
	}
	w := float64(vp.Width) - 2*p.cfg.PaddingPx
	h := float64(vp.Height) - 2*p.cfg.PaddingPx
	if w <= 0 || h <= 0 {
		w, h = float64(vp.Width), float64(vp.Height)
	}
	view.Zoom = p.clamp(math.Floor(fitZoom(dx, dy, w, h, p.cfg.TileSize)))
	return view
}

func (p *Planner) clamp(z float64) float64 {
	return math.Max(p.cfg.MinZoom, math.Min(p.cfg.MaxZoom, z))
}

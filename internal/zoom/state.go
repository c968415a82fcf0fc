// Package zoom maps pointer and wheel input to a crop rectangle in source
// pixels and to the overlay geometry shared by every visible pane.
package zoom

// State is the zoom configuration plus the input-driven fields that change
// while the user inspects a region.
type State struct {
	AreaWidth   int     `json:"zoomAreaWidth"`
	AreaHeight  int     `json:"zoomAreaHeight"`
	WidthRatio  float64 `json:"zoomAreaWidthRatio"`
	HeightRatio float64 `json:"zoomAreaHeightRatio"`
	// Color is a CSS colour, bare hex, or "label" for the pane label colour.
	Color     string  `json:"zoomAreaColor"`
	Alpha     float64 `json:"zoomAlpha"`
	Thickness int     `json:"zoomAreaThickness"`
	Delta     int     `json:"zoomAreaDelta"`

	MouseDown  bool `json:"mouseDown"`
	WidthOnly  bool `json:"widthOnly"`
	HeightOnly bool `json:"heightOnly"`

	// Params is the geometry of the last pointer update, nil before the first.
	Params *DrawParams `json:"params,omitempty"`
}

// DefaultState returns the documented defaults.
func DefaultState() State {
	return State{
		AreaWidth:   100,
		AreaHeight:  100,
		WidthRatio:  0.8,
		HeightRatio: 0.8,
		Color:       "label",
		Alpha:       0.5,
		Thickness:   5,
		Delta:       5,
	}
}

// Lock selects the axis a wheel event resizes.
type Lock string

const (
	LockNone   Lock = ""
	LockWidth  Lock = "width"
	LockHeight Lock = "height"
)

// SetLock sets the mutually exclusive axis locks.
func (s *State) SetLock(l Lock) {
	s.WidthOnly = l == LockWidth
	s.HeightOnly = l == LockHeight
}

// Wheel resizes the zoom area. A negative deltaY grows it by Delta, capped at
// the natural image size (the smaller side when both axes grow); a positive
// deltaY shrinks it, never below Delta. A natural size <= 0 means the image is
// not loaded yet and does not cap the area.
func (s *State) Wheel(deltaY float64, naturalW, naturalH int) {
	switch {
	case deltaY < 0:
		switch {
		case s.WidthOnly:
			s.AreaWidth = capSize(s.AreaWidth+s.Delta, naturalW)
		case s.HeightOnly:
			s.AreaHeight = capSize(s.AreaHeight+s.Delta, naturalH)
		default:
			limit := naturalW
			if naturalH > 0 && (limit <= 0 || naturalH < limit) {
				limit = naturalH
			}
			s.AreaWidth = capSize(s.AreaWidth+s.Delta, limit)
			s.AreaHeight = capSize(s.AreaHeight+s.Delta, limit)
		}
	case deltaY > 0:
		switch {
		case s.WidthOnly:
			s.AreaWidth = max(s.Delta, s.AreaWidth-s.Delta)
		case s.HeightOnly:
			s.AreaHeight = max(s.Delta, s.AreaHeight-s.Delta)
		default:
			s.AreaWidth = max(s.Delta, s.AreaWidth-s.Delta)
			s.AreaHeight = max(s.Delta, s.AreaHeight-s.Delta)
		}
	}
}

func capSize(v, limit int) int {
	if limit <= 0 {
		return v
	}
	return min(limit, v)
}

// DrawAlpha is the opacity of the magnified content: full while the pointer
// is pressed, Alpha otherwise.
func (s *State) DrawAlpha() float64 {
	if s.MouseDown {
		return 1
	}
	return s.Alpha
}

package zoom

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// CropRegion is a crop in natural pixels plus the view flags that travel
// with it in a crop token.
type CropRegion struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
	// DiffIndex is the visible pane used as diff baseline, -1 for none.
	DiffIndex         int  `json:"diffIndex"`
	ShowMetricOverlay bool `json:"showMetricOverlay"`
}

// Token formats the region as x<N>y<N>w<N>h<N>, followed by d<N> when a
// diff baseline is set and p1 when the metric overlay is shown.
func (c CropRegion) Token() string {
	var b strings.Builder
	fmt.Fprintf(&b, "x%dy%dw%dh%d", c.X, c.Y, c.W, c.H)
	if c.DiffIndex > -1 {
		fmt.Fprintf(&b, "d%d", c.DiffIndex)
	}
	if c.ShowMetricOverlay {
		b.WriteString("p1")
	}
	return b.String()
}

// ErrInvalidToken is returned for a token with no recognisable field.
var ErrInvalidToken = errors.New("invalid crop token")

// ParseCropToken is the inverse of Token. Every key letter followed by
// digits sets that field and anything else is skipped. A missing d gives
// DiffIndex -1, and only p1 enables the overlay.
func ParseCropToken(s string) (CropRegion, error) {
	c := CropRegion{DiffIndex: -1}
	found := 0
	for i := 0; i < len(s); {
		key := s[i]
		j := i + 1
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		if j == i+1 || !strings.ContainsRune("xywhdp", rune(key)) {
			i++
			continue
		}
		n, err := strconv.Atoi(s[i+1 : j])
		if err != nil {
			return CropRegion{}, fmt.Errorf("%w: %s: %v", ErrInvalidToken, s, err)
		}
		switch key {
		case 'x':
			c.X = n
		case 'y':
			c.Y = n
		case 'w':
			c.W = n
		case 'h':
			c.H = n
		case 'd':
			c.DiffIndex = n
		case 'p':
			c.ShowMetricOverlay = n == 1
		}
		found++
		i = j
	}
	if found == 0 {
		return CropRegion{}, fmt.Errorf("%w: %q", ErrInvalidToken, s)
	}
	return c, nil
}

package target

import (
	"regexp"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

var bareHex = regexp.MustCompile(`(?i)^([0-9A-F]{3}){1,2}$`)

// NormalizeColor adds the leading '#' to bare hex colours and passes every
// other CSS colour through.
func NormalizeColor(c string) string {
	if bareHex.MatchString(c) {
		return "#" + c
	}
	return c
}

// ColorForString derives a stable background colour from a label.
func ColorForString(s string) string {
	var hash int32
	for _, r := range s {
		hash = int32(r) + ((hash << 5) - hash)
	}
	h := float64(hash % 360)
	if h < 0 {
		h += 360
	}
	return colorful.Hsl(h, 0.6, 0.45).Clamped().Hex()
}

// ContrastColor picks black or white text for a background using the YIQ
// brightness formula. Colours that cannot be parsed as hex get black.
func ContrastColor(background string) string {
	c, err := colorful.Hex(NormalizeColor(background))
	if err != nil {
		return "black"
	}
	r, g, b := c.RGB255()
	yiq := (int(r)*299 + int(g)*587 + int(b)*114) / 1000
	if yiq >= 128 {
		return "black"
	}
	return "white"
}

// CenterPad pads s with spaces on both sides to width runes; the extra space
// of an odd gap goes to the right.
func CenterPad(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	left := (width - n) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-n-left)
}

func applyLabelStyle(targets []*Target) {
	longest := 0
	for _, t := range targets {
		longest = max(longest, len([]rune(t.Label)))
	}
	for _, t := range targets {
		if t.LabelBackgroundColor == "" {
			t.LabelBackgroundColor = ColorForString(t.Label)
		}
		t.LabelBackgroundColor = NormalizeColor(t.LabelBackgroundColor)
		if t.LabelColor == "" {
			t.LabelColor = ContrastColor(t.LabelBackgroundColor)
		}
		t.LabelColor = NormalizeColor(t.LabelColor)
		t.DisplayLabel = CenterPad(t.Label, longest)
	}
}

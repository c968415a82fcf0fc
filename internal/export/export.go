// Package export builds crop bundles: one PNG crop per visible pane packed
// into a zip archive named after the sample and its crop token.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"path"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/klauspost/compress/zip"

	"github.com/cwbudde/srviewer/internal/zoom"
)

// ErrEmptyRegion is returned for a crop with no area.
var ErrEmptyRegion = errors.New("crop region is empty")

// Entry is one pane in the bundle.
type Entry struct {
	Label string
	// Image is what the pane currently displays (raw or composited).
	Image image.Image
	// Original replaces the re-encoded full image in the [ORIGINAL] entry,
	// normally the untouched source file bytes of a raw pane.
	Original []byte
}

// Request describes one crop export.
type Request struct {
	Title           string
	File            string
	Region          zoom.CropRegion
	Entries         []Entry
	IncludeOriginal bool
	// Scale, when greater than 1, upscales each crop with nearest neighbour.
	Scale int
	// Modified stamps every zip entry; zero means now.
	Modified time.Time
}

// Bundle is a finished archive.
type Bundle struct {
	Name      string   `json:"name"`
	CropToken string   `json:"cropToken"`
	Files     []string `json:"files"`
	Data      []byte   `json:"-"`
}

// Name returns the archive file name for file and region.
func Name(title, file string, region zoom.CropRegion) string {
	stem := file
	if i := strings.LastIndex(file, "."); i >= 0 {
		stem = file[:i]
	}
	return fmt.Sprintf("[%s] %s_%s.zip", title, path.Base(stem), region.Token())
}

// EntryName returns the zip member name of pane i.
func EntryName(i int, label string, cropped, withOriginal bool) string {
	label = strings.ReplaceAll(label, "/", "／")
	switch {
	case !cropped:
		return fmt.Sprintf("[%d] [ORIGINAL] %s.png", i, label)
	case withOriginal:
		return fmt.Sprintf("[%d] [CROPPED] %s.png", i, label)
	default:
		return fmt.Sprintf("[%d] %s.png", i, label)
	}
}

// Crop cuts region out of img into a region-sized canvas. Parts of the
// region outside img stay transparent.
func Crop(img image.Image, region zoom.CropRegion) *image.NRGBA {
	b := img.Bounds()
	rect := image.Rect(region.X, region.Y, region.X+region.W, region.Y+region.H).Add(b.Min)
	canvas := imaging.New(region.W, region.H, image.Transparent)
	visible := rect.Intersect(b)
	if visible.Empty() {
		return canvas
	}
	return imaging.Paste(canvas, imaging.Crop(img, visible), visible.Min.Sub(rect.Min))
}

// Build renders every entry and returns the zip bundle.
func Build(req Request) (*Bundle, error) {
	if req.Region.W <= 0 || req.Region.H <= 0 {
		return nil, ErrEmptyRegion
	}
	modified := req.Modified
	if modified.IsZero() {
		modified = time.Now()
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	bundle := &Bundle{
		Name:      Name(req.Title, req.File, req.Region),
		CropToken: req.Region.Token(),
	}

	add := func(name string, data []byte) error {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		bundle.Files = append(bundle.Files, name)
		return nil
	}

	for i, e := range req.Entries {
		if e.Image == nil {
			return nil, fmt.Errorf("pane %d has no image", i)
		}
		cropped := Crop(e.Image, req.Region)
		if req.Scale > 1 {
			cropped = imaging.Resize(cropped, cropped.Rect.Dx()*req.Scale, cropped.Rect.Dy()*req.Scale, imaging.NearestNeighbor)
		}
		data, err := encodePNG(cropped)
		if err != nil {
			return nil, err
		}
		if err := add(EntryName(i, e.Label, true, req.IncludeOriginal), data); err != nil {
			return nil, err
		}
	}

	if req.IncludeOriginal {
		for i, e := range req.Entries {
			data := e.Original
			if data == nil {
				var err error
				if data, err = encodePNG(e.Image); err != nil {
					return nil, err
				}
			}
			if err := add(EntryName(i, e.Label, false, true), data); err != nil {
				return nil, err
			}
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	bundle.Data = buf.Bytes()
	return bundle, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

package lane

import (
	"fmt"
	"image"
	"image/color"

	"dualdetect/internal/detector"

	"gocv.io/x/gocv"
)

// Style is how a lane burns its overlays into frames.
type Style struct {
	Color     color.RGBA
	Thickness int
	FontScale float64
}

// DefaultStyle returns the overlay style used by both reference lanes.
func DefaultStyle(c color.RGBA) Style {
	return Style{Color: c, Thickness: 2, FontScale: 0.5}
}

// Caption formats the text drawn above a box.
func Caption(d detector.Detection) string {
	return fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
}

// Draw renders a box and caption for every detection onto a BGR frame.
// Colors are given in RGB; gocv maps them to the frame's BGR order.
func (s Style) Draw(frame *gocv.Mat, detections []detector.Detection) error {
	for _, d := range detections {
		if err := gocv.Rectangle(frame, d.Box, s.Color, s.Thickness); err != nil {
			return fmt.Errorf("failed to draw rectangle: %w", err)
		}

		pt := image.Pt(d.Box.Min.X, d.Box.Min.Y-10)
		if err := gocv.PutText(frame, Caption(d), pt, gocv.FontHersheySimplex, s.FontScale, s.Color, s.Thickness); err != nil {
			return fmt.Errorf("failed to draw text: %w", err)
		}
	}
	return nil
}

// toSinkImage converts an annotated BGR frame into the RGBA image handed to
// sinks. This is the only place channel order changes.
func toSinkImage(frame gocv.Mat) (*image.RGBA, error) {
	rgba := gocv.NewMat()
	defer rgba.Close()

	if err := gocv.CvtColor(frame, &rgba, gocv.ColorBGRToRGBA); err != nil {
		return nil, fmt.Errorf("failed to convert BGR to RGBA: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, rgba.Cols(), rgba.Rows()))
	data := rgba.ToBytes()
	if len(data) != len(img.Pix) {
		return nil, fmt.Errorf("unexpected RGBA buffer size %d, want %d", len(data), len(img.Pix))
	}
	copy(img.Pix, data)
	return img, nil
}

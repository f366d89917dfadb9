package detector

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
)

// ErrNetNotLoaded is returned by Detect when the network failed to load.
var ErrNetNotLoaded = errors.New("detection network not initialized")

// Detection is one labeled, scored bounding box in source-frame pixels.
type Detection struct {
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
}

// Detector runs inference on a single BGR frame. Implementations are not
// assumed safe for concurrent use; every lane owns its own instance.
type Detector interface {
	Detect(frame gocv.Mat) ([]Detection, error)
	Close() error
}

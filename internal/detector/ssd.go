package detector

import (
	"fmt"
	"image"
	"os"

	"dualdetect/internal/logger"

	"gocv.io/x/gocv"
)

// SSD output rows are [batch_id, class_id, confidence, x1, y1, x2, y2].
const ssdRowWidth = 7

// SSDDetector runs an SSD-style network (e.g. MobileNet SSD COCO) through the
// OpenCV DNN module.
type SSDDetector struct {
	net        gocv.Net
	loaded     bool
	modelPath  string
	configPath string
	labels     Labels
	logger     *logger.Logger
}

// NewSSDDetector loads the network. A missing or broken model is logged and
// the detector is returned anyway; Detect then reports ErrNetNotLoaded.
func NewSSDDetector(modelPath, configPath string, labels Labels, logger *logger.Logger) *SSDDetector {
	d := &SSDDetector{
		modelPath:  modelPath,
		configPath: configPath,
		labels:     labels,
		logger:     logger,
	}

	if err := d.initializeNet(); err != nil {
		d.logger.Warning("Could not initialize detection network %s: %v", modelPath, err)
	}
	return d
}

// initializeNet loads the DNN network and sets backend/target preferences.
func (d *SSDDetector) initializeNet() error {
	if _, err := os.Stat(d.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", d.modelPath)
	}
	if d.configPath != "" {
		if _, err := os.Stat(d.configPath); os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", d.configPath)
		}
	}

	net := gocv.ReadNet(d.modelPath, d.configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network")
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	d.net = net
	d.loaded = true
	d.logger.Info("Detection network %s initialized", d.modelPath)
	return nil
}

// Detect runs the network on frame and returns every decoded detection,
// unfiltered. Boxes are in frame pixel coordinates.
func (d *SSDDetector) Detect(frame gocv.Mat) ([]Detection, error) {
	if !d.loaded {
		return nil, ErrNetNotLoaded
	}
	if frame.Empty() {
		return nil, fmt.Errorf("frame is empty")
	}

	// Blob parameters fit the SSD COCO family
	blob := gocv.BlobFromImage(frame, 1.0/127.5, image.Pt(300, 300), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	total := output.Total()
	if total%ssdRowWidth != 0 {
		return nil, fmt.Errorf("unexpected output size %d", total)
	}
	reshaped := output.Reshape(1, total/ssdRowWidth)
	defer reshaped.Close()

	raw := make([]float32, 0, total)
	for i := 0; i < reshaped.Rows(); i++ {
		for j := 0; j < ssdRowWidth; j++ {
			raw = append(raw, reshaped.GetFloatAt(i, j))
		}
	}

	return decodeSSD(raw, frame.Cols(), frame.Rows(), d.labels), nil
}

// decodeSSD converts flat SSD rows into detections scaled to width x height.
// Rows with non-positive confidence are skipped.
func decodeSSD(raw []float32, width, height int, labels Labels) []Detection {
	bounds := image.Rect(0, 0, width, height)
	var out []Detection

	for i := 0; i+ssdRowWidth <= len(raw); i += ssdRowWidth {
		row := raw[i : i+ssdRowWidth]
		confidence := row[2]
		if confidence <= 0 {
			continue
		}

		box := image.Rect(
			int(row[3]*float32(width)),
			int(row[4]*float32(height)),
			int(row[5]*float32(width)),
			int(row[6]*float32(height)),
		).Intersect(bounds)
		if box.Empty() {
			continue
		}

		out = append(out, Detection{
			Label:      labels.Name(int(row[1])),
			Confidence: float64(confidence),
			Box:        box,
		})
	}
	return out
}

// Close releases the network.
func (d *SSDDetector) Close() error {
	if !d.loaded {
		return nil
	}
	d.loaded = false
	return d.net.Close()
}

package source

import (
	"fmt"
	"strconv"
	"strings"

	"gocv.io/x/gocv"
)

// Source yields successive raw BGR frames. *gocv.VideoCapture satisfies it.
//
// A Source is owned by exactly one reader at a time; Close releases the
// underlying device or stream.
type Source interface {
	Read(dst *gocv.Mat) bool
	Close() error
}

// Opener turns a source id into an open Source.
type Opener interface {
	Open(id string) (Source, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(id string) (Source, error)

// Open calls f(id).
func (f OpenerFunc) Open(id string) (Source, error) {
	return f(id)
}

// CaptureOpener opens device indices and stream URLs through OpenCV.
type CaptureOpener struct{}

// Open opens id as a device index when it is an integer, otherwise as a
// URL or file path (e.g. a phone camera's http stream).
func (CaptureOpener) Open(id string) (Source, error) {
	var device interface{} = id
	if index, err := strconv.Atoi(id); err == nil {
		device = index
	}

	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open video capture %s: %w", id, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("video capture %s is not opened", id)
	}
	return capture, nil
}

// IsURL reports whether a selection names a network stream rather than a
// display name from an enumeration.
func IsURL(selection string) bool {
	return strings.Contains(selection, "://")
}

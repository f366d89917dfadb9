package lane

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"

	"dualdetect/internal/detector"
	"dualdetect/internal/detector/detectortest"
	"dualdetect/internal/logger"
	"dualdetect/internal/source/sourcetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	blue  = color.RGBA{B: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	black = color.RGBA{A: 255}
)

type recordingSink struct {
	mu      sync.Mutex
	results []FrameResult
	notify  chan FrameResult
}

func newRecordingSink() *recordingSink {
	return &recordingSink{notify: make(chan FrameResult, 64)}
}

func (s *recordingSink) Put(r FrameResult) {
	s.mu.Lock()
	s.results = append(s.results, r)
	s.mu.Unlock()
	select {
	case s.notify <- r:
	default:
	}
}

func (s *recordingSink) Results() []FrameResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FrameResult(nil), s.results...)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(t.TempDir())
	require.NoError(t, err)
	return l
}

func boxed(label string, confidence float64, box image.Rectangle) detector.Detection {
	return detector.Detection{Label: label, Confidence: confidence, Box: box}
}

func runLoop(t *testing.T, src *sourcetest.Source, d detector.Detector, policy Policy, style Style, stop chan struct{}) (ExitReason, error, *recordingSink) {
	t.Helper()
	if stop == nil {
		stop = make(chan struct{})
	}
	sink := newRecordingSink()
	loop := NewLoop(LoopConfig{
		Lane:     "test",
		RunID:    "run",
		Source:   src,
		Detector: d,
		Policy:   policy,
		Style:    style,
		Sink:     sink,
		Stop:     stop,
		Logger:   testLogger(t),
	})
	reason, err := loop.Run()
	return reason, err, sink
}

func TestLoop_AnimalLaneCountsAndDrawsOnlyAccepted(t *testing.T) {
	deer := boxed("deer", 0.75, image.Rect(20, 30, 80, 90))
	fox := boxed("fox", 0.40, image.Rect(100, 40, 150, 100))
	d := detectortest.New([]detector.Detection{deer, fox})

	reason, err, sink := runLoop(t, sourcetest.NewSource(1), d, Policy{Threshold: 0.60}, DefaultStyle(blue), nil)

	require.NoError(t, err)
	assert.Equal(t, ExitSourceExhausted, reason)
	results := sink.Results()
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, 1, r.Count)
	assert.Equal(t, []detector.Detection{deer}, r.Detections)

	require.NotNil(t, r.Frame)
	assert.Equal(t, image.Rect(0, 0, sourcetest.DefaultWidth, sourcetest.DefaultHeight), r.Frame.Bounds())
	assert.Equal(t, blue, r.Frame.RGBAAt(50, 30), "deer box top edge drawn in lane color")
	assert.Equal(t, blue, r.Frame.RGBAAt(20, 60), "deer box left edge drawn in lane color")
	assert.Equal(t, black, r.Frame.RGBAAt(125, 40), "fox box must not be drawn")
	assert.Equal(t, black, r.Frame.RGBAAt(100, 70), "fox box must not be drawn")
}

func TestLoop_HumanLaneFiltersByCategory(t *testing.T) {
	person := boxed("person", 0.10, image.Rect(10, 30, 40, 100))
	car := boxed("car", 0.95, image.Rect(60, 30, 150, 100))
	d := detectortest.New([]detector.Detection{person, car})

	_, err, sink := runLoop(t, sourcetest.NewSource(1), d, Policy{Category: "person", Threshold: 0}, DefaultStyle(green), nil)

	require.NoError(t, err)
	results := sink.Results()
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Count)
	assert.Equal(t, green, results[0].Frame.RGBAAt(25, 30))
	assert.Equal(t, black, results[0].Frame.RGBAAt(100, 100), "car box must not be drawn")
}

func TestLoop_CountIsPerFrame(t *testing.T) {
	one := []detector.Detection{boxed("deer", 0.9, image.Rect(10, 20, 30, 40))}
	two := append(one, boxed("boar", 0.8, image.Rect(50, 60, 70, 80)))
	d := detectortest.New(two, one, nil)

	_, err, sink := runLoop(t, sourcetest.NewSource(3), d, Policy{Threshold: 0.6}, DefaultStyle(blue), nil)

	require.NoError(t, err)
	var counts []int
	for _, r := range sink.Results() {
		counts = append(counts, r.Count)
	}
	assert.Equal(t, []int{2, 1, 0}, counts)
}

func TestLoop_SequenceIsGapless(t *testing.T) {
	const frames = 7
	src := sourcetest.NewSource(frames)

	reason, err, sink := runLoop(t, src, detectortest.New(), Policy{}, DefaultStyle(blue), nil)

	require.NoError(t, err)
	assert.Equal(t, ExitSourceExhausted, reason)
	results := sink.Results()
	require.Len(t, results, frames)
	for i, r := range results {
		assert.Equal(t, uint64(i), r.Sequence)
		assert.Equal(t, "test", r.Lane)
		assert.Equal(t, "run", r.RunID)
	}
	assert.Equal(t, 1, src.Closes())
}

func TestLoop_StopDiscardsPulledFrame(t *testing.T) {
	src := sourcetest.NewSource(-1)
	d := detectortest.New()
	stop := make(chan struct{})
	close(stop)

	reason, err, sink := runLoop(t, src, d, Policy{}, DefaultStyle(blue), stop)

	require.NoError(t, err)
	assert.Equal(t, ExitStoppedByOperator, reason)
	assert.Equal(t, 1, src.Reads())
	assert.Zero(t, d.Calls(), "no inference after stop")
	assert.Empty(t, sink.Results())
	assert.Equal(t, 1, src.Closes())
}

func TestLoop_InferenceFailureEndsRun(t *testing.T) {
	boom := errors.New("model crashed")
	src := sourcetest.NewSource(-1)
	d := detectortest.New()
	d.FailAt = 2
	d.Err = boom

	reason, err, sink := runLoop(t, src, d, Policy{}, DefaultStyle(blue), nil)

	assert.Equal(t, ExitInferenceFailure, reason)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, sink.Results(), 2)
	assert.Equal(t, 1, src.Closes())
}

func TestLoop_EmptySource(t *testing.T) {
	src := sourcetest.NewSource(0)
	d := detectortest.New()

	reason, err, sink := runLoop(t, src, d, Policy{}, DefaultStyle(blue), nil)

	require.NoError(t, err)
	assert.Equal(t, ExitSourceExhausted, reason)
	assert.Empty(t, sink.Results())
	assert.Zero(t, d.Calls())
	assert.Equal(t, 1, src.Closes())
}

func TestCaption(t *testing.T) {
	assert.Equal(t, "deer 0.75", Caption(det("deer", 0.75)))
	assert.Equal(t, "person 0.10", Caption(det("person", 0.1)))
}

package lane

import (
	"fmt"
	"time"

	"dualdetect/internal/detector"
	"dualdetect/internal/logger"
	"dualdetect/internal/source"

	"gocv.io/x/gocv"
)

// Loop turns one open source and one detector into a stream of FrameResults.
// It owns the source and closes it on every exit path.
type Loop struct {
	lane     string
	runID    string
	source   source.Source
	detector detector.Detector
	policy   Policy
	style    Style
	sink     Sink
	stop     <-chan struct{}
	logger   *logger.Logger

	seq uint64
}

// LoopConfig bundles the collaborators of a Loop.
type LoopConfig struct {
	Lane     string
	RunID    string
	Source   source.Source
	Detector detector.Detector
	Policy   Policy
	Style    Style
	Sink     Sink
	Stop     <-chan struct{} // Closed to request a cooperative stop
	Logger   *logger.Logger
}

// NewLoop creates a loop; nothing runs until Run.
func NewLoop(cfg LoopConfig) *Loop {
	return &Loop{
		lane:     cfg.Lane,
		runID:    cfg.RunID,
		source:   cfg.Source,
		detector: cfg.Detector,
		policy:   cfg.Policy,
		style:    cfg.Style,
		sink:     cfg.Sink,
		stop:     cfg.Stop,
		logger:   cfg.Logger,
	}
}

// Run iterates until the source ends, a stop is requested, or a frame fails.
// The stop signal is checked after each pull and before inference, so a
// pulled frame is discarded once stop is set.
func (l *Loop) Run() (ExitReason, error) {
	defer func() {
		if err := l.source.Close(); err != nil {
			l.logger.Error("Failed to release source: %v", err)
		}
	}()

	frame := gocv.NewMat()
	defer frame.Close()

	for {
		if !l.source.Read(&frame) || frame.Empty() {
			l.logger.Info("Source exhausted after %d frames", l.seq)
			return ExitSourceExhausted, nil
		}

		if l.stopRequested() {
			l.logger.Info("Stopped by operator after %d frames", l.seq)
			return ExitStoppedByOperator, nil
		}

		result, err := l.process(&frame)
		if err != nil {
			l.logger.Error("Frame %d failed: %v", l.seq, err)
			return ExitInferenceFailure, err
		}

		if l.sink != nil {
			l.sink.Put(result)
		}
		l.seq++
	}
}

func (l *Loop) stopRequested() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

func (l *Loop) process(frame *gocv.Mat) (FrameResult, error) {
	capturedAt := time.Now()

	detections, err := l.detector.Detect(*frame)
	if err != nil {
		return FrameResult{}, fmt.Errorf("inference: %w", err)
	}

	accepted := l.policy.Filter(detections)
	if err := l.style.Draw(frame, accepted); err != nil {
		return FrameResult{}, fmt.Errorf("annotate: %w", err)
	}

	img, err := toSinkImage(*frame)
	if err != nil {
		return FrameResult{}, err
	}

	return FrameResult{
		Lane:       l.lane,
		RunID:      l.runID,
		Sequence:   l.seq,
		Count:      len(accepted),
		Detections: accepted,
		Frame:      img,
		CapturedAt: capturedAt,
	}, nil
}

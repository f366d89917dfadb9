package lane

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dualdetect/internal/detector"
	"dualdetect/internal/logger"
	"dualdetect/internal/source"

	"github.com/google/uuid"
)

var (
	// ErrSourceUnavailable means the resolved source could not be opened.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrLaneBusy means a Start arrived while the lane was not Idle.
	ErrLaneBusy = errors.New("lane is not idle")
	// ErrLaneClosed means the lane was shut down and accepts no more starts.
	ErrLaneClosed = errors.New("lane is closed")
)

// Status is the control state of a lane.
type Status int

const (
	Idle Status = iota
	Running
	Stopping
)

func (s Status) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	default:
		return "Idle"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// LaneState is a point-in-time copy of a lane's control and runtime state.
type LaneState struct {
	Lane            string       `json:"lane"`
	Status          Status       `json:"status"`
	SelectedSource  string       `json:"selectedSource,omitempty"`
	SourceName      string       `json:"sourceName,omitempty"`
	Policy          Policy       `json:"policy"`
	LastResult      *FrameResult `json:"lastResult,omitempty"`
	RunID           string       `json:"runId,omitempty"`
	StartedAt       time.Time    `json:"startedAt"`
	FramesProcessed uint64       `json:"framesProcessed"`
	LastExit        ExitReason   `json:"lastExit,omitempty"`
	LastError       string       `json:"lastError,omitempty"`
	Warning         string       `json:"warning,omitempty"`
}

// StartRequest is an operator's start command. Nil policy fields keep the
// lane's configured defaults.
type StartRequest struct {
	Selection string // Display name, stream URL, or empty for the default source
	SourceID  string // Remembered device id or URL, used when Selection is empty
	Category  *string
	Threshold *float64
}

// StartResult describes the source a successful (or fallen-back) Start used.
type StartResult struct {
	SourceID   string `json:"sourceId"`
	SourceName string `json:"sourceName"`
	RunID      string `json:"runId,omitempty"`
	Warning    string `json:"warning,omitempty"`
}

// Config describes one lane.
type Config struct {
	Name            string
	Detector        detector.Detector
	Opener          source.Opener
	Sources         func() *source.Snapshot // Latest enumeration; may return nil
	DefaultSourceID string
	DefaultPolicy   Policy
	Style           Style
	Sink            Sink
	Logger          *logger.Logger
}

// Controller is the Idle/Running/Stopping state machine of one lane. At most
// one Loop runs per controller, and its source is released before the lane
// reports Idle again.
type Controller struct {
	cfg    Config
	logger *logger.Logger

	mu          sync.Mutex
	state       LaneState
	opening     chan struct{} // Closed once an in-flight Start settles
	stopPending bool
	closed      bool
	stopCh      chan struct{}
	done        chan struct{}
}

// NewController creates an Idle lane.
func NewController(cfg Config) *Controller {
	return &Controller{
		cfg:    cfg,
		logger: cfg.Logger.With("[lane=" + cfg.Name + "]"),
		state: LaneState{
			Lane:   cfg.Name,
			Status: Idle,
			Policy: cfg.DefaultPolicy,
		},
	}
}

// Name returns the lane id.
func (c *Controller) Name() string {
	return c.cfg.Name
}

// DefaultPolicy returns the policy used when a start request leaves it open.
func (c *Controller) DefaultPolicy() Policy {
	return c.cfg.DefaultPolicy
}

// Start resolves the selection, opens the source, and spawns the loop.
// A stale selection falls back to the default source with a warning. The lane
// stays Idle if the source cannot be opened or the policy is invalid. A Stop
// or Close that arrives while the source is opening stops the new run before
// its first inference.
func (c *Controller) Start(req StartRequest) (StartResult, error) {
	policy := c.cfg.DefaultPolicy
	if req.Category != nil {
		policy.Category = *req.Category
	}
	if req.Threshold != nil {
		policy.Threshold = *req.Threshold
	}
	if err := policy.Validate(); err != nil {
		return StartResult{}, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return StartResult{}, ErrLaneClosed
	}
	if c.state.Status != Idle || c.opening != nil {
		status := c.state.Status
		c.mu.Unlock()
		return StartResult{}, fmt.Errorf("%w: %s", ErrLaneBusy, status)
	}
	opening := make(chan struct{})
	c.opening = opening
	c.stopPending = false
	c.mu.Unlock()
	defer close(opening)

	target, warning := c.resolve(req)
	result := StartResult{SourceID: target.ID, SourceName: target.DisplayName, Warning: warning}
	if warning != "" {
		c.logger.Warning("%s", warning)
	}

	src, err := c.cfg.Opener.Open(target.ID)
	if err != nil {
		c.mu.Lock()
		c.opening = nil
		c.stopPending = false
		c.state.Warning = warning
		c.state.LastError = err.Error()
		c.mu.Unlock()
		c.logger.Warning("Source %s (%s) unavailable: %v", target.DisplayName, target.ID, err)
		return result, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, target.ID, err)
	}

	runID := uuid.NewString()
	result.RunID = runID
	stop := make(chan struct{})
	done := make(chan struct{})

	loop := NewLoop(LoopConfig{
		Lane:     c.cfg.Name,
		RunID:    runID,
		Source:   src,
		Detector: c.cfg.Detector,
		Policy:   policy,
		Style:    c.cfg.Style,
		Sink:     c.record(runID),
		Stop:     stop,
		Logger:   c.logger.With("[run=" + runID[:8] + "]"),
	})

	c.mu.Lock()
	c.opening = nil
	c.stopCh = stop
	c.done = done
	c.state = LaneState{
		Lane:           c.cfg.Name,
		Status:         Running,
		SelectedSource: target.ID,
		SourceName:     target.DisplayName,
		Policy:         policy,
		RunID:          runID,
		StartedAt:      time.Now(),
		Warning:        warning,
	}
	cancelled := c.stopPending || c.closed
	if cancelled {
		c.state.Status = Stopping
		close(stop)
	}
	c.stopPending = false
	c.mu.Unlock()

	c.logger.Info("Started on %s (%s), category=%q threshold=%.2f", target.DisplayName, target.ID, policy.Category, policy.Threshold)
	if cancelled {
		c.logger.Info("Stop requested while opening the source")
	}
	go c.run(loop, runID, done)

	return result, nil
}

// resolve maps a start request to a source. A display name is matched against
// the latest snapshot and a remembered id is matched by id, so the default
// source is never reported as missing just because enumeration skipped it.
func (c *Controller) resolve(req StartRequest) (source.FrameSource, string) {
	selection := req.Selection
	if selection == "" {
		selection = req.SourceID
	}
	if source.IsURL(selection) {
		return source.FrameSource{ID: selection, DisplayName: selection}, ""
	}

	var snap *source.Snapshot
	if c.cfg.Sources != nil {
		snap = c.cfg.Sources()
	}

	fallback, ok := snap.LookupID(c.cfg.DefaultSourceID)
	if !ok {
		fallback = source.FrameSource{ID: c.cfg.DefaultSourceID, DisplayName: "Camera " + c.cfg.DefaultSourceID}
	}

	switch {
	case req.Selection != "":
		if src, ok := snap.Lookup(req.Selection); ok {
			return src, ""
		}
		return fallback, fmt.Sprintf("Selected camera %q not found. Using default camera %s.", req.Selection, fallback.ID)
	case req.SourceID == "" || req.SourceID == c.cfg.DefaultSourceID:
		return fallback, ""
	default:
		if src, ok := snap.LookupID(req.SourceID); ok {
			return src, ""
		}
		return fallback, fmt.Sprintf("Saved camera %s not found. Using default camera %s.", req.SourceID, fallback.ID)
	}
}

func (c *Controller) record(runID string) SinkFunc {
	return func(r FrameResult) {
		c.mu.Lock()
		if c.state.RunID == runID {
			c.state.LastResult = &r
			c.state.FramesProcessed++
		}
		c.mu.Unlock()

		if c.cfg.Sink != nil {
			c.cfg.Sink.Put(r)
		}
	}
}

func (c *Controller) run(loop *Loop, runID string, done chan struct{}) {
	defer close(done)

	reason, err := loop.Run()

	c.mu.Lock()
	c.state.Status = Idle
	c.state.LastExit = reason
	if err != nil {
		c.state.LastError = err.Error()
	}
	frames := c.state.FramesProcessed
	c.stopCh = nil
	c.mu.Unlock()

	c.logger.Info("Run %s ended: %s after %d frames", runID[:8], reason, frames)
}

// Stop requests a cooperative stop. It returns immediately; the lane becomes
// Idle once the loop observes the signal. Stopping an idle lane is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opening != nil {
		c.stopPending = true
		return
	}
	if c.state.Status != Running {
		return
	}
	c.state.Status = Stopping
	close(c.stopCh)
	c.logger.Info("Stop requested")
}

// State returns a snapshot of the lane without waiting on the loop.
func (c *Controller) State() LaneState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Wait blocks until an in-flight Start has settled and the current loop (if
// any) has exited.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	opening := c.opening
	c.mu.Unlock()

	if opening != nil {
		select {
		case <-opening:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the lane, waits for the loop, and releases the detector.
// Later starts fail with ErrLaneClosed.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.Stop()
	if err := c.Wait(ctx); err != nil {
		return fmt.Errorf("lane %s did not stop: %w", c.cfg.Name, err)
	}
	if c.cfg.Detector != nil {
		return c.cfg.Detector.Close()
	}
	return nil
}

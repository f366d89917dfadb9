// Package service wires the detection lanes together behind one control surface.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"dualdetect/internal/detector"
	"dualdetect/internal/lane"
	"dualdetect/internal/logger"
	"dualdetect/internal/model"
	"dualdetect/internal/repository"
	"dualdetect/internal/source"
)

// Lane ids of the reference deployment.
const (
	AnimalLane = "animal"
	HumanLane  = "human"
)

// ErrUnknownLane is returned for lane ids the manager does not own.
var ErrUnknownLane = errors.New("unknown lane")

// Enumerator produces source snapshots. *source.Enumerator satisfies it.
type Enumerator interface {
	EnumerateSkipping(inUse map[string]bool) *source.Snapshot
}

// LaneSpec describes one lane owned by the Manager.
type LaneSpec struct {
	Name          string
	Noun          string // Plural shown next to the count, e.g. "animals"
	Detector      detector.Detector
	DefaultPolicy lane.Policy
	Style         lane.Style
}

// Options configures a Manager.
type Options struct {
	Lanes           []LaneSpec
	Enumerator      Enumerator
	Opener          source.Opener
	Settings        repository.LaneSettingsRepository // Optional
	Sink            lane.Sink
	DefaultSourceID string
	Logger          *logger.Logger
}

// Manager owns a fixed set of independent lanes. The only state shared
// between lanes is the current source snapshot, which is swapped atomically
// and never mutated.
type Manager struct {
	lanes      map[string]*lane.Controller
	order      []string
	nouns      map[string]string
	enumerator Enumerator
	settings   repository.LaneSettingsRepository
	logger     *logger.Logger

	snapshot  atomic.Pointer[source.Snapshot]
	refreshMu sync.Mutex
}

// NewManager builds every lane in Idle. Sources are not enumerated until
// RefreshSources is called.
func NewManager(opts Options) *Manager {
	m := &Manager{
		lanes:      make(map[string]*lane.Controller, len(opts.Lanes)),
		nouns:      make(map[string]string, len(opts.Lanes)),
		enumerator: opts.Enumerator,
		settings:   opts.Settings,
		logger:     opts.Logger.With("[manager]"),
	}

	for _, spec := range opts.Lanes {
		m.lanes[spec.Name] = lane.NewController(lane.Config{
			Name:            spec.Name,
			Detector:        spec.Detector,
			Opener:          opts.Opener,
			Sources:         m.snapshot.Load,
			DefaultSourceID: opts.DefaultSourceID,
			DefaultPolicy:   spec.DefaultPolicy,
			Style:           spec.Style,
			Sink:            opts.Sink,
			Logger:          opts.Logger,
		})
		m.order = append(m.order, spec.Name)
		m.nouns[spec.Name] = spec.Noun
	}

	return m
}

// ListSources returns the current snapshot, or nil before the first refresh.
func (m *Manager) ListSources() *source.Snapshot {
	return m.snapshot.Load()
}

// RefreshSources runs an enumeration pass and publishes its snapshot.
// Devices held by running lanes are kept without being reopened.
func (m *Manager) RefreshSources() *source.Snapshot {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	inUse := make(map[string]bool)
	for _, c := range m.lanes {
		if state := c.State(); state.Status != lane.Idle {
			inUse[state.SelectedSource] = true
		}
	}

	snap := m.enumerator.EnumerateSkipping(inUse)
	m.snapshot.Store(snap)
	m.logger.Info("Enumerated %d source(s): %v", snap.Len(), snap.Map())
	return snap
}

// Start starts a lane. Fields the request leaves empty are taken from the
// lane's saved settings, if any. The effective settings are saved on success.
func (m *Manager) Start(name string, req lane.StartRequest) (lane.StartResult, error) {
	c, err := m.lane(name)
	if err != nil {
		return lane.StartResult{}, err
	}

	req = m.withSavedSettings(name, req)

	res, err := c.Start(req)
	if err != nil {
		return res, err
	}

	m.saveSettings(name, res, c.State().Policy)
	return res, nil
}

func (m *Manager) withSavedSettings(name string, req lane.StartRequest) lane.StartRequest {
	if m.settings == nil {
		return req
	}
	saved, err := m.settings.Get(name)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			m.logger.Warning("Failed to load settings of lane %s: %v", name, err)
		}
		return req
	}

	if req.Selection == "" && req.SourceID == "" {
		req.SourceID = saved.SourceID
	}
	if req.Category == nil {
		category := saved.Category
		req.Category = &category
	}
	if req.Threshold == nil {
		threshold := saved.Threshold
		req.Threshold = &threshold
	}
	return req
}

func (m *Manager) saveSettings(name string, res lane.StartResult, policy lane.Policy) {
	if m.settings == nil {
		return
	}
	err := m.settings.Save(&model.LaneSettings{
		Lane:      name,
		SourceID:  res.SourceID,
		Category:  policy.Category,
		Threshold: policy.Threshold,
	})
	if err != nil {
		m.logger.Warning("Failed to save settings of lane %s: %v", name, err)
	}
}

// SavedSettings returns the remembered start settings of every lane that has
// been started successfully at least once.
func (m *Manager) SavedSettings() ([]model.LaneSettings, error) {
	if m.settings == nil {
		return []model.LaneSettings{}, nil
	}
	saved, err := m.settings.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load lane settings: %w", err)
	}
	if saved == nil {
		saved = []model.LaneSettings{}
	}
	return saved, nil
}

// ResetSettings forgets a lane's remembered settings, so the next start
// without overrides uses the default source and policy.
func (m *Manager) ResetSettings(name string) error {
	if _, err := m.lane(name); err != nil {
		return err
	}
	if m.settings == nil {
		return nil
	}
	if err := m.settings.Delete(name); err != nil {
		return fmt.Errorf("failed to reset settings of lane %s: %w", name, err)
	}
	m.logger.Info("Settings of lane %s reset", name)
	return nil
}

// Stop requests a cooperative stop. Stopping an idle lane succeeds.
func (m *Manager) Stop(name string) error {
	c, err := m.lane(name)
	if err != nil {
		return err
	}
	c.Stop()
	return nil
}

// Poll returns the lane's current state without waiting on its loop.
func (m *Manager) Poll(name string) (lane.LaneState, error) {
	c, err := m.lane(name)
	if err != nil {
		return lane.LaneState{}, err
	}
	return c.State(), nil
}

// Lanes returns the state of every lane in construction order.
func (m *Manager) Lanes() []lane.LaneState {
	states := make([]lane.LaneState, 0, len(m.order))
	for _, name := range m.order {
		states = append(states, m.lanes[name].State())
	}
	return states
}

// LaneNames returns the lane ids in construction order.
func (m *Manager) LaneNames() []string {
	return append([]string(nil), m.order...)
}

// Noun returns the plural a lane counts, e.g. "animals".
func (m *Manager) Noun(name string) string {
	return m.nouns[name]
}

// Shutdown stops every lane concurrently, waits for their loops, and closes
// the detectors.
func (m *Manager) Shutdown(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, c := range m.lanes {
		wg.Add(1)
		go func(c *lane.Controller) {
			defer wg.Done()
			if err := c.Close(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	m.logger.Info("All lanes stopped")
	return errors.Join(errs...)
}

func (m *Manager) lane(name string) (*lane.Controller, error) {
	c, ok := m.lanes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLane, name)
	}
	return c, nil
}

package app

import (
	"bufio"
	"context"
	"image/color"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dualdetect/internal/config"
	"dualdetect/internal/detector/detectortest"
	"dualdetect/internal/lane"
	"dualdetect/internal/logger"
	"dualdetect/internal/repository/sqlite"
	"dualdetect/internal/route"
	"dualdetect/internal/service"
	"dualdetect/internal/service/stream"
	"dualdetect/internal/service/websocket"
	"dualdetect/internal/source"
	"dualdetect/internal/source/sourcetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type appFixture struct {
	app    *App
	url    string
	opener *sourcetest.Opener
	animal *detectortest.Detector
	human  *detectortest.Detector

	stuckEntered chan struct{}
	releaseStuck chan struct{}

	cancel context.CancelFunc
	done   chan error
}

// startTestApp serves the full router plus GET /test/stuck, a handler that
// ignores its request context until the test ends.
func startTestApp(t *testing.T, httpTimeout time.Duration) *appFixture {
	t.Helper()
	dir := t.TempDir()
	log, err := logger.New(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	db, err := sqlite.New(filepath.Join(dir, "lanes.db"))
	require.NoError(t, err)

	f := &appFixture{
		opener:       sourcetest.NewOpener().AddReadable("0").AddReadable("1"),
		animal:       detectortest.New(),
		human:        detectortest.New(),
		stuckEntered: make(chan struct{}),
		releaseStuck: make(chan struct{}),
		done:         make(chan error, 1),
	}

	hub := websocket.NewHubService(8, log)
	publisher := stream.NewPublisher(hub, 80, log)
	publisher.RegisterLane(service.AnimalLane, "animals")
	publisher.RegisterLane(service.HumanLane, "humans")

	mng := service.NewManager(service.Options{
		Lanes: []service.LaneSpec{
			{Name: service.AnimalLane, Noun: "animals", Detector: f.animal, DefaultPolicy: lane.Policy{Threshold: 0.6}, Style: lane.DefaultStyle(color.RGBA{B: 255, A: 255})},
			{Name: service.HumanLane, Noun: "humans", Detector: f.human, DefaultPolicy: lane.Policy{Category: "person"}, Style: lane.DefaultStyle(color.RGBA{G: 255, A: 255})},
		},
		Enumerator:      source.NewEnumerator(f.opener, 2, log),
		Opener:          f.opener,
		Settings:        sqlite.NewLaneSettingsRepository(db),
		Sink:            publisher,
		DefaultSourceID: "0",
		Logger:          log,
	})

	mux := http.NewServeMux()
	mux.Handle("/", route.SetupRoutes(mng, hub, publisher, log, dir))
	mux.HandleFunc("GET /test/stuck", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		close(f.stuckEntered)
		<-f.releaseStuck
	})

	f.app = newApp(&config.Config{}, log, db, hub, publisher, mng, mux)
	f.app.laneTimeout = 5 * time.Second
	f.app.httpTimeout = httpTimeout

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f.url = "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() { f.done <- f.app.serve(ctx, ln) }()

	t.Cleanup(func() {
		close(f.releaseStuck)
		cancel()
	})
	return f
}

func (f *appFixture) post(t *testing.T, path, body string) {
	t.Helper()
	resp, err := http.Post(f.url+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
}

func (f *appFixture) shutdown(t *testing.T, within time.Duration) {
	t.Helper()
	f.cancel()
	select {
	case err := <-f.done:
		require.NoError(t, err)
	case <-time.After(within):
		t.Fatalf("server still running %s after shutdown began", within)
	}
}

func TestApp_ShutdownReleasesLanesWhenHTTPIsStuck(t *testing.T) {
	f := startTestApp(t, 100*time.Millisecond)
	f.post(t, "/api/lanes/animal/start", "{}")
	f.post(t, "/api/lanes/human/start", `{"source":"External Camera 1"}`)

	go func() {
		resp, err := http.Get(f.url + "/test/stuck")
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}()
	select {
	case <-f.stuckEntered:
	case <-time.After(5 * time.Second):
		t.Fatal("stuck request never reached its handler")
	}

	f.shutdown(t, 5*time.Second)

	for _, s := range f.app.manager.Lanes() {
		assert.Equal(t, lane.Idle, s.Status, s.Lane)
		assert.Equal(t, lane.ExitStoppedByOperator, s.LastExit, s.Lane)
	}
	assert.True(t, f.animal.Closed())
	assert.True(t, f.human.Closed())
	assert.False(t, f.animal.UsedAfterClose())
	assert.False(t, f.human.UsedAfterClose())
	assert.Zero(t, f.opener.Leaked())
}

func TestApp_ShutdownReleasesMJPEGViewers(t *testing.T) {
	f := startTestApp(t, 10*time.Second)
	f.post(t, "/api/lanes/animal/start", "{}")

	resp, err := http.Get(f.url + "/mjpeg/animal")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.Contains(strings.ToLower(line), "image/jpeg") {
			break
		}
	}

	// Well under the HTTP timeout: the viewer must not hold the server open.
	f.shutdown(t, 5*time.Second)

	io.Copy(io.Discard, reader)
	assert.True(t, f.animal.Closed())
	assert.Zero(t, f.opener.Leaked())
}

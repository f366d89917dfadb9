package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"dualdetect/internal/config"
	"dualdetect/internal/detector"
	"dualdetect/internal/lane"
	"dualdetect/internal/logger"
	"dualdetect/internal/repository/sqlite"
	"dualdetect/internal/route"
	"dualdetect/internal/service"
	"dualdetect/internal/service/stream"
	"dualdetect/internal/service/websocket"
	"dualdetect/internal/source"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config    *config.Config
	logger    *logger.Logger
	db        *sqlite.DB
	hub       *websocket.HubService
	publisher *stream.Publisher
	manager   *service.Manager
	server    *http.Server

	// Cancels the context of every in-flight request.
	cancelRequests context.CancelFunc
	laneTimeout    time.Duration
	httpTimeout    time.Duration
}

func NewApp(cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg.LogDirectory)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	labels := detector.COCOLabels()
	if cfg.LabelsPath != "" {
		if labels, err = detector.LoadLabels(cfg.LabelsPath); err != nil {
			db.Close()
			return nil, err
		}
	}

	hub := websocket.NewHubService(cfg.HubBuffer, log)
	publisher := stream.NewPublisher(hub, cfg.JPEGQuality, log)

	lanes := []service.LaneSpec{
		{
			Name:          service.AnimalLane,
			Noun:          "animals",
			Detector:      detector.NewSSDDetector(cfg.AnimalModelPath, cfg.AnimalConfigPath, labels, log.With("[detector=animal]")),
			DefaultPolicy: lane.Policy{Category: cfg.AnimalCategory, Threshold: cfg.AnimalConfidenceThreshold},
			Style:         lane.DefaultStyle(cfg.AnimalBoxColor),
		},
		{
			Name:          service.HumanLane,
			Noun:          "humans",
			Detector:      detector.NewSSDDetector(cfg.HumanModelPath, cfg.HumanConfigPath, labels, log.With("[detector=human]")),
			DefaultPolicy: lane.Policy{Category: cfg.HumanCategory, Threshold: cfg.HumanConfidenceThreshold},
			Style:         lane.DefaultStyle(cfg.HumanBoxColor),
		},
	}
	for _, spec := range lanes {
		publisher.RegisterLane(spec.Name, spec.Noun)
	}

	opener := source.CaptureOpener{}
	mng := service.NewManager(service.Options{
		Lanes:           lanes,
		Enumerator:      source.NewEnumerator(opener, cfg.ProbeMaxIndex, log),
		Opener:          opener,
		Settings:        sqlite.NewLaneSettingsRepository(db),
		Sink:            publisher,
		DefaultSourceID: strconv.Itoa(cfg.DefaultSourceID),
		Logger:          log,
	})

	router := route.SetupRoutes(mng, hub, publisher, log, cfg.StaticDirectory)

	return newApp(cfg, log, db, hub, publisher, mng, router), nil
}

func newApp(cfg *config.Config, log *logger.Logger, db *sqlite.DB, hub *websocket.HubService,
	publisher *stream.Publisher, mng *service.Manager, handler http.Handler) *App {
	requestCtx, cancelRequests := context.WithCancel(context.Background())
	return &App{
		config:    cfg,
		logger:    log,
		db:        db,
		hub:       hub,
		publisher: publisher,
		manager:   mng,
		server: &http.Server{
			Addr:        fmt.Sprintf(":%d", cfg.Port),
			Handler:     handler,
			BaseContext: func(net.Listener) context.Context { return requestCtx },
		},
		cancelRequests: cancelRequests,
		laneTimeout:    shutdownTimeout,
		httpTimeout:    shutdownTimeout,
	}
}

// Run serves until ctx is cancelled, then stops the lanes and releases
// every source, detector, and the database.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		a.logger.Error("Failed to listen on %s: %v", a.server.Addr, err)
		a.cancelRequests()
		return errors.Join(err, a.release())
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go a.hub.Run(hubCtx)

	a.manager.RefreshSources()

	fmt.Printf("🚀 Dual-lane detection server\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("📷 Sources: %d\n", a.manager.ListSources().Len())
	fmt.Printf("🤖 Models: %s, %s\n", a.config.AnimalModelPath, a.config.HumanModelPath)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.server.Serve(ln)
	}()

	var err error
	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		a.logger.Info("Shutting down")
	}

	// Lanes stop before the HTTP side, each step under its own deadline.
	if lerr := a.stopLanes(); lerr != nil {
		a.logger.Error("Lane shutdown: %v", lerr)
		err = errors.Join(err, lerr)
	}

	a.cancelRequests()
	httpCtx, cancel := context.WithTimeout(context.Background(), a.httpTimeout)
	defer cancel()
	if serr := a.server.Shutdown(httpCtx); serr != nil {
		a.logger.Warning("HTTP shutdown: %v; closing remaining connections", serr)
		a.server.Close()
	}

	stopHub()
	if derr := a.db.Close(); derr != nil {
		err = errors.Join(err, derr)
	}
	return err
}

func (a *App) stopLanes() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.laneTimeout)
	defer cancel()
	return a.manager.Shutdown(ctx)
}

// release frees the lanes and the database when the server never started.
func (a *App) release() error {
	return errors.Join(a.stopLanes(), a.db.Close())
}

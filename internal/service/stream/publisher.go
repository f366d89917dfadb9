// Package stream publishes annotated lane frames to live viewers.
package stream

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"dualdetect/internal/dto"
	"dualdetect/internal/lane"
	"dualdetect/internal/logger"

	"github.com/hybridgroup/mjpeg"
)

// Broadcaster accepts viewer messages without blocking.
type Broadcaster interface {
	Broadcast(message []byte) bool
}

// releaseInterval is how often a viewer whose request has ended is handed a
// frame, since the mjpeg stream only returns after a failed write.
const releaseInterval = 25 * time.Millisecond

type laneStream struct {
	noun  string
	mjpeg *mjpeg.Stream

	mu   sync.Mutex // UpdateJPEG reuses one buffer
	last []byte
}

func (ls *laneStream) update(jpeg []byte) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.last = jpeg
	ls.mjpeg.UpdateJPEG(jpeg)
}

func (ls *laneStream) resend() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.mjpeg.UpdateJPEG(ls.last)
}

// ServeHTTP streams the lane until the viewer goes away or the request
// context ends, whichever comes first.
func (ls *laneStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	served := make(chan struct{})
	defer close(served)

	stop := context.AfterFunc(ctx, func() {
		ticker := time.NewTicker(releaseInterval)
		defer ticker.Stop()
		for {
			ls.resend()
			select {
			case <-served:
				return
			case <-ticker.C:
			}
		}
	})
	defer stop()

	ls.mjpeg.ServeHTTP(&contextWriter{ResponseWriter: w, ctx: ctx}, r)
}

// contextWriter fails every write once ctx is done and flushes each frame.
type contextWriter struct {
	http.ResponseWriter
	ctx context.Context
}

func (w *contextWriter) Write(b []byte) (int, error) {
	if err := w.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := w.ResponseWriter.Write(b)
	if err == nil {
		if f, ok := w.ResponseWriter.(http.Flusher); ok {
			f.Flush()
		}
	}
	return n, err
}

// Publisher is a lane.Sink that encodes every frame once as JPEG and hands it
// to the websocket hub and to the lane's MJPEG stream. Neither path waits on
// a slow viewer.
type Publisher struct {
	hub     Broadcaster
	quality int
	logger  *logger.Logger

	mu    sync.RWMutex
	lanes map[string]*laneStream
}

// NewPublisher creates a publisher encoding with the given JPEG quality.
func NewPublisher(hub Broadcaster, quality int, logger *logger.Logger) *Publisher {
	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	return &Publisher{
		hub:     hub,
		quality: quality,
		logger:  logger.With("[publisher]"),
		lanes:   make(map[string]*laneStream),
	}
}

// RegisterLane creates the MJPEG stream of a lane. noun is the plural shown
// with the count, e.g. "animals".
func (p *Publisher) RegisterLane(name, noun string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.lanes[name]; ok {
		return
	}
	p.lanes[name] = &laneStream{noun: noun, mjpeg: mjpeg.NewStream()}
}

// Stream returns the MJPEG handler of a registered lane. The handler returns
// once the request context is done, even if no new frame arrives.
func (p *Publisher) Stream(name string) (http.Handler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ls, ok := p.lanes[name]
	if !ok {
		return nil, false
	}
	return ls, true
}

// Put implements lane.Sink.
func (p *Publisher) Put(r lane.FrameResult) {
	p.mu.RLock()
	ls := p.lanes[r.Lane]
	p.mu.RUnlock()

	msg := dto.FrameMessage{
		Lane:       r.Lane,
		RunID:      r.RunID,
		Seq:        r.Sequence,
		Count:      r.Count,
		Detections: dto.FromDetections(r.Detections),
		CapturedAt: r.CapturedAt,
	}
	if ls != nil {
		msg.Noun = ls.noun
	}

	if r.Frame != nil {
		img, err := p.encode(r)
		if err != nil {
			p.logger.Error("Lane %s frame %d: %v", r.Lane, r.Sequence, err)
		} else {
			msg.Image = base64.StdEncoding.EncodeToString(img)
			if ls != nil {
				ls.update(img)
			}
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("Lane %s frame %d: failed to marshal message: %v", r.Lane, r.Sequence, err)
		return
	}
	p.hub.Broadcast(payload)
}

func (p *Publisher) encode(r lane.FrameResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, r.Frame, &jpeg.Options{Quality: p.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

var _ lane.Sink = (*Publisher)(nil)

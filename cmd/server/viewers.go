package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	mandel "github.com/marben/mandel_explorer"
	"github.com/marben/mandel_explorer/scheduler"
	"github.com/marben/mandel_explorer/viewer"
)

// statusInterval is how often viewers get a progress update
const statusInterval = 250 * time.Millisecond

// serveViewers accepts viewer connections until ctx is done or l is closed.
func serveViewers(ctx context.Context, l net.Listener, ws *scheduler.WorkScheduler) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		vc := newViewerConn(conn, ws)
		wg.Add(1)
		go func() {
			defer wg.Done()
			vc.log.Info("viewer connected", "remote", conn.RemoteAddr())
			if err := vc.serve(ctx); err != nil {
				vc.log.Warn("viewer failed", "err", err)
				return
			}
			vc.log.Info("viewer disconnected")
		}()
	}
}

// viewerConn is one connected browser viewer.
// Surfaces are scaled to its display size before they are sent.
type viewerConn struct {
	id   uuid.UUID
	conn net.Conn
	ws   *scheduler.WorkScheduler
	log  *slog.Logger

	mu            sync.Mutex
	width, height int // display size, 0 until the viewer reports it
	resized       chan struct{}
}

func newViewerConn(conn net.Conn, ws *scheduler.WorkScheduler) *viewerConn {
	id := uuid.New()
	return &viewerConn{
		id:   id,
		conn: conn,
		ws:   ws,
		log:  mandel.Logger().With("viewer", id.String()),

		resized: make(chan struct{}, 1),
	}
}

func (vc *viewerConn) displaySize() (int, int) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.width, vc.height
}

func (vc *viewerConn) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer vc.conn.Close()

	surfaces, unsubscribe := vc.ws.Subscribe()
	defer unsubscribe()

	readErr := make(chan error, 1)
	go func() {
		readErr <- vc.readCommands()
		cancel()
	}()

	enc := json.NewEncoder(vc.conn)
	status := time.NewTicker(statusInterval)
	defer status.Stop()

	var last *mandel.Surface

	for {
		var msg viewer.Message
		select {
		case <-ctx.Done():
			// closing the connection unblocks the command reader
			vc.conn.Close()
			if err := <-readErr; err != nil && !errors.Is(err, io.EOF) {
				vc.log.Debug("command reader stopped", "err", err)
			}
			return nil
		case s, ok := <-surfaces:
			if !ok {
				return nil
			}
			last = s
			w, h := vc.displaySize()
			m, err := viewer.SurfaceMessage(s, w, h)
			if err != nil {
				return err
			}
			msg = m
		case <-vc.resized:
			if last == nil {
				continue
			}
			w, h := vc.displaySize()
			m, err := viewer.SurfaceMessage(last, w, h)
			if err != nil {
				return err
			}
			msg = m
		case <-status.C:
			msg = viewer.StatusMessage(vc.ws, vc.ws.Request(), vc.ws.Workers())
		}

		if err := enc.Encode(msg); err != nil {
			return fmt.Errorf("send %s: %w", msg.Type, err)
		}
	}
}

// readCommands applies the viewer's commands to the shared scheduler until
// the connection fails.
func (vc *viewerConn) readCommands() error {
	dec := json.NewDecoder(vc.conn)
	for {
		var cmd viewer.Command
		if err := dec.Decode(&cmd); err != nil {
			return err
		}
		vc.log.Debug("command", "op", cmd.Op)

		if cmd.Op == viewer.OpResize {
			vc.mu.Lock()
			vc.width, vc.height = viewer.DisplaySize(cmd.Width, cmd.Height)
			vc.mu.Unlock()
			select {
			case vc.resized <- struct{}{}:
			default:
			}
			continue
		}
		if err := viewer.Apply(cmd, vc.ws); err != nil {
			// a bad command is the viewer's problem, the connection stays up
			vc.log.Warn("command rejected", "err", err)
		}
	}
}

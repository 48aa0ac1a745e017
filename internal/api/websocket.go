package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Jeffrey0117/Ytify/internal/notify"
)

const (
	wsBuffer       = 64
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// wsSubscriber buffers events for one websocket connection. A slow client
// loses events instead of stalling the notifier.
type wsSubscriber struct {
	out  chan notify.Event
	done chan struct{}
	once sync.Once
}

func newWSSubscriber() *wsSubscriber {
	return &wsSubscriber{
		out:  make(chan notify.Event, wsBuffer),
		done: make(chan struct{}),
	}
}

func (c *wsSubscriber) Send(ev notify.Event) error {
	select {
	case <-c.done:
		return notify.ErrSubscriberClosed
	default:
	}
	select {
	case c.out <- ev:
	default:
	}
	return nil
}

func (c *wsSubscriber) close() {
	c.once.Do(func() { close(c.done) })
}

// handleWebsocket streams events for one job (/ws/{id}) or every job
// (/ws). A job-scoped connection first receives the job's current state.
// Clients may send "ping" and get "pong" back.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	jobID := mux.Vars(r)["id"]
	sub := newWSSubscriber()
	handle := s.svc.Notifier().Subscribe(jobID, sub)
	defer s.svc.Notifier().Unsubscribe(handle)
	defer sub.close()

	s.logger.Debug("websocket connected", "job_id", jobID, "remote", r.RemoteAddr)

	if jobID != "" {
		if job, err := s.svc.Job(jobID); err == nil {
			snap := job.Snapshot()
			sub.Send(notify.Event{
				JobID:     snap.ID,
				Status:    snap.Status,
				Progress:  snap.Progress,
				Title:     snap.Title,
				Output:    snap.Output,
				Message:   snap.Error,
				Timestamp: snap.UpdatedAt,
			})
		}
	}

	pings := make(chan struct{}, 1)
	go func() {
		defer sub.close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if strings.EqualFold(strings.TrimSpace(string(msg)), "ping") {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sub.done:
			return
		case <-r.Context().Done():
			return
		case ev := <-sub.out:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-pings:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("pong")); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

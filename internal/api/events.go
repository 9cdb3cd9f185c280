package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"todo-api/pkg/eventgraph"
)

// pollInterval is the default stream poll period for a store without a Bus.
const pollInterval = 2 * time.Second

func (s *Server) handleEventList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := queryInt(r, "limit", 50)

	var (
		events []eventgraph.Event
		err    error
	)
	switch {
	case r.URL.Query().Get("task") != "":
		events, err = s.events.ByTask(ctx, r.URL.Query().Get("task"), limit)
	case r.URL.Query().Get("type") != "":
		events, err = s.events.ByType(ctx, r.URL.Query().Get("type"), limit)
	default:
		events, err = s.events.Recent(ctx, limit)
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, 200, events)
}

func (s *Server) handleEventGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	e, err := s.events.Get(r.Context(), id)
	if errors.Is(err, eventgraph.ErrNotFound) {
		writeError(w, 404, fmt.Sprintf("event with id %s not found", id))
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, 200, e)
}

func (s *Server) handleEventVerify(w http.ResponseWriter, r *http.Request) {
	if err := s.events.VerifyChain(r.Context()); err != nil {
		s.logger.Warn("hash chain verification failed", "err", err)
		writeError(w, 409, "chain verification failed: "+err.Error())
		return
	}
	writeJSON(w, 200, map[string]string{"status": "ok", "message": "hash chain verified"})
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, 500, "streaming not supported")
		return
	}

	q := r.URL.Query()
	taskID := q.Get("task")
	after := q.Get("after")
	if after != "" {
		_, err := s.events.Get(r.Context(), after)
		if errors.Is(err, eventgraph.ErrNotFound) {
			writeError(w, 400, fmt.Sprintf("unknown event id %s in after", after))
			return
		}
		if err != nil {
			s.internalError(w, r, err)
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(200)
	flusher.Flush()

	if s.bus != nil {
		s.streamFromBus(w, r, flusher, taskID, after)
		return
	}
	s.streamByPolling(w, r, flusher, taskID, after)
}

// streamFromBus replays the backlog after the given event, if any, then
// forwards live events from the Bus.
func (s *Server) streamFromBus(w http.ResponseWriter, r *http.Request, flusher http.Flusher, taskID, after string) {
	ch := s.bus.Subscribe(taskID)
	defer s.bus.Unsubscribe(ch)

	replayed := make(map[string]bool)
	if after != "" {
		backlog, err := s.events.Since(r.Context(), after, 500)
		if err != nil {
			s.logger.Warn("event stream backlog", "err", err)
			return
		}
		for i := range backlog {
			if taskID != "" && backlog[i].TaskID != taskID {
				continue
			}
			if err := writeSSE(w, &backlog[i]); err != nil {
				return
			}
			replayed[backlog[i].ID] = true
		}
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closed:
			return
		case e := <-ch:
			if replayed[e.ID] {
				continue
			}
			if err := writeSSE(w, e); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// streamByPolling tails the store from after, or from the current head when
// after is empty.
func (s *Server) streamByPolling(w http.ResponseWriter, r *http.Request, flusher http.Flusher, taskID, after string) {
	ctx := r.Context()
	lastID := after
	if lastID == "" {
		head, err := s.events.Recent(ctx, 1)
		if err != nil {
			s.logger.Warn("event stream head", "err", err)
			return
		}
		if len(head) > 0 {
			lastID = head[0].ID
		}
	}

	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		case <-ticker.C:
			var (
				events []eventgraph.Event
				err    error
			)
			if lastID == "" {
				events, err = s.events.Recent(ctx, 50)
				reverse(events)
			} else {
				events, err = s.events.Since(ctx, lastID, 50)
			}
			if err != nil {
				s.logger.Warn("event stream poll", "err", err)
				continue
			}
			sent := false
			for i := range events {
				lastID = events[i].ID
				if taskID != "" && events[i].TaskID != taskID {
					continue
				}
				if err := writeSSE(w, &events[i]); err != nil {
					return
				}
				sent = true
			}
			if sent {
				flusher.Flush()
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, e *eventgraph.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, data)
	return err
}

func reverse(events []eventgraph.Event) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
}

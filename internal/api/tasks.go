package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"todo-api/pkg/task"
)

const msgNoTasks = "There are no tasks."

func taskNotFound(id string) string {
	return fmt.Sprintf("task with id %s not found", id)
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		writeError(w, 400, "read body: "+err.Error())
		return
	}
	req, err := DecodeCreateTask(raw)
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}
	if err := req.Validate(s.tasks.Now()); err != nil {
		writeError(w, 400, err.Error())
		return
	}
	t := req.Task(s.newID())
	if err := s.tasks.Create(r.Context(), t); err != nil {
		s.serviceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/tasks/"+t.ID)
	writeJSON(w, 201, t)
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.tasks.Get(r.Context(), id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if t == nil {
		writeError(w, 404, taskNotFound(id))
		return
	}
	writeJSON(w, 200, t)
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.List(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if len(tasks) == 0 {
		writeError(w, 404, msgNoTasks)
		return
	}
	writeJSON(w, 200, tasks)
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, 400, "id query parameter is required")
		return
	}
	n, err := s.tasks.Count(ctx)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if n == 0 {
		writeError(w, 404, msgNoTasks)
		return
	}
	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if t == nil {
		writeError(w, 404, taskNotFound(id))
		return
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, 200, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		writeError(w, 400, "read body: "+err.Error())
		return
	}
	req, err := DecodeUpdateTask(raw)
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}
	if err := req.Validate(s.tasks.Now()); err != nil {
		writeError(w, 400, err.Error())
		return
	}
	t, err := s.tasks.Update(r.Context(), req.ID, req.ExpiryTime, req.Title, req.Description, req.CompletePercent)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	if t == nil {
		writeError(w, 404, taskNotFound(req.ID))
		return
	}
	writeJSON(w, 200, t)
}

func (s *Server) handleTaskComplete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	complete, err := completeParam(r)
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}
	t, err := s.tasks.SetComplete(r.Context(), id, complete)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	if t == nil {
		writeError(w, 404, taskNotFound(id))
		return
	}
	writeJSON(w, 200, t)
}

func (s *Server) handleTaskPercent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	percent, err := percentParam(r)
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}
	if err := task.ValidatePercent(percent); err != nil {
		writeError(w, 400, err.Error())
		return
	}
	t, err := s.tasks.SetPercent(r.Context(), id, percent)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	if t == nil {
		writeError(w, 404, taskNotFound(id))
		return
	}
	writeJSON(w, 200, t)
}

func (s *Server) handleTaskWindow(label string, list func(context.Context) ([]task.Task, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, err := list(r.Context())
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if len(tasks) == 0 {
			writeError(w, 404, "There are no tasks for "+label+".")
			return
		}
		writeJSON(w, 200, tasks)
	}
}

// completeParam reads isCompleted from the query string, or from the JSON
// body when the query has none.
func completeParam(r *http.Request) (bool, error) {
	if v := r.URL.Query().Get("isCompleted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%w: isCompleted must be a boolean", task.ErrInvalidInput)
		}
		return b, nil
	}
	raw, err := readBody(r)
	if err != nil {
		return false, fmt.Errorf("read body: %w", err)
	}
	req, err := DecodeSetComplete(raw)
	if err != nil {
		return false, err
	}
	return req.IsCompleted, nil
}

// percentParam reads percent from the query string, or from the JSON body
// when the query has none.
func percentParam(r *http.Request) (int, error) {
	if v := r.URL.Query().Get("percent"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%w: percent must be an integer", task.ErrInvalidInput)
		}
		return n, nil
	}
	raw, err := readBody(r)
	if err != nil {
		return 0, fmt.Errorf("read body: %w", err)
	}
	req, err := DecodeSetPercent(raw)
	if err != nil {
		return 0, err
	}
	return req.Percent, nil
}

package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"todo-api/pkg/task"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Request schema names, one file each under schemas/.
const (
	schemaCreateTask  = "create_task.json"
	schemaUpdateTask  = "update_task.json"
	schemaSetComplete = "set_complete.json"
	schemaSetPercent  = "set_percent.json"
)

var schemas = mustCompileSchemas()

func mustCompileSchemas() map[string]*jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true

	names := []string{schemaCreateTask, schemaUpdateTask, schemaSetComplete, schemaSetPercent}
	for _, name := range names {
		data, err := schemaFS.ReadFile(path.Join("schemas", name))
		if err != nil {
			panic(fmt.Sprintf("read schema %s: %v", name, err))
		}
		if err := compiler.AddResource(schemaURL(name), bytes.NewReader(data)); err != nil {
			panic(fmt.Sprintf("add schema %s: %v", name, err))
		}
	}

	out := make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		s, err := compiler.Compile(schemaURL(name))
		if err != nil {
			panic(fmt.Sprintf("compile schema %s: %v", name, err))
		}
		out[name] = s
	}
	return out
}

func schemaURL(name string) string {
	return "mem://todo-api/schemas/" + name
}

// CreateTaskRequest is the payload of POST /tasks. An ID or completion flag
// sent by the client is ignored.
type CreateTaskRequest struct {
	ExpiryTime      time.Time `json:"expiryTime"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	CompletePercent int       `json:"completePercent"`
}

// Validate applies the rules the schema cannot express.
func (r *CreateTaskRequest) Validate(now time.Time) error {
	if err := task.ValidateExpiry(now, r.ExpiryTime); err != nil {
		return err
	}
	return task.ValidatePercent(r.CompletePercent)
}

// Task builds a new, not yet completed task with the given ID.
func (r *CreateTaskRequest) Task(id string) *task.Task {
	return &task.Task{
		ID:              id,
		ExpiryTime:      r.ExpiryTime,
		Title:           r.Title,
		Description:     r.Description,
		CompletePercent: r.CompletePercent,
	}
}

// UpdateTaskRequest is the payload of PUT /tasks.
type UpdateTaskRequest struct {
	ID              string    `json:"id"`
	ExpiryTime      time.Time `json:"expiryTime"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	CompletePercent int       `json:"completePercent"`
}

// Validate applies the rules the schema cannot express. Expiry is checked
// first so a stale payload fails with 400 even for an unknown ID.
func (r *UpdateTaskRequest) Validate(now time.Time) error {
	if err := task.ValidateExpiry(now, r.ExpiryTime); err != nil {
		return err
	}
	return task.ValidatePercent(r.CompletePercent)
}

// SetCompleteRequest is the JSON form of PATCH /tasks/{id}/complete.
type SetCompleteRequest struct {
	IsCompleted bool `json:"isCompleted"`
}

// SetPercentRequest is the JSON form of PATCH /tasks/{id}/percent.
type SetPercentRequest struct {
	Percent int `json:"percent"`
}

// DecodeCreateTask validates raw against the create schema and decodes it.
func DecodeCreateTask(raw []byte) (*CreateTaskRequest, error) {
	var req CreateTaskRequest
	if err := decode(raw, schemaCreateTask, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// DecodeUpdateTask validates raw against the update schema and decodes it.
func DecodeUpdateTask(raw []byte) (*UpdateTaskRequest, error) {
	var req UpdateTaskRequest
	if err := decode(raw, schemaUpdateTask, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// DecodeSetComplete validates raw against the completion schema and decodes it.
func DecodeSetComplete(raw []byte) (*SetCompleteRequest, error) {
	var req SetCompleteRequest
	if err := decode(raw, schemaSetComplete, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// DecodeSetPercent validates raw against the percent schema and decodes it.
func DecodeSetPercent(raw []byte) (*SetPercentRequest, error) {
	var req SetPercentRequest
	if err := decode(raw, schemaSetPercent, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func decode(raw []byte, schemaName string, dst any) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", task.ErrInvalidInput, err)
	}
	if err := schemas[schemaName].Validate(doc); err != nil {
		return fmt.Errorf("%w: %s", task.ErrInvalidInput, schemaMessage(err))
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", task.ErrInvalidInput, err)
	}
	return nil
}

// schemaMessage flattens a validation error tree into "field: message" parts.
func schemaMessage(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	var parts []string
	collectSchemaErrors(ve, &parts)
	return strings.Join(parts, "; ")
}

func collectSchemaErrors(ve *jsonschema.ValidationError, parts *[]string) {
	if len(ve.Causes) == 0 {
		field := strings.TrimPrefix(ve.InstanceLocation, "/")
		if field == "" {
			*parts = append(*parts, ve.Message)
		} else {
			*parts = append(*parts, field+": "+ve.Message)
		}
		return
	}
	for _, cause := range ve.Causes {
		collectSchemaErrors(cause, parts)
	}
}

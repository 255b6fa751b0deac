package n8n

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ID is an n8n identifier. Depending on the n8n version ids arrive as JSON
// strings or numbers; both decode to the same textual form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*id = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("n8n id: %w", err)
		}
		*id = ID(n.String())
	}
	return nil
}

func (id ID) String() string { return string(id) }

// WorkflowSpec is the body of create and update calls.
type WorkflowSpec struct {
	Name        string          `json:"name"`
	Nodes       json.RawMessage `json:"nodes"`
	Connections json.RawMessage `json:"connections"`
	Settings    json.RawMessage `json:"settings"`
}

// normalized fills the fields n8n rejects when absent.
func (s WorkflowSpec) normalized() WorkflowSpec {
	if absent(s.Nodes) {
		s.Nodes = json.RawMessage(`[]`)
	}
	if absent(s.Connections) {
		s.Connections = json.RawMessage(`{}`)
	}
	if absent(s.Settings) {
		s.Settings = json.RawMessage(`{}`)
	}
	return s
}

func absent(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

type Workflow struct {
	ID          ID              `json:"id"`
	Name        string          `json:"name"`
	Active      bool            `json:"active"`
	Nodes       json.RawMessage `json:"nodes,omitempty"`
	Connections json.RawMessage `json:"connections,omitempty"`
	Settings    json.RawMessage `json:"settings,omitempty"`
	CreatedAt   *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time      `json:"updatedAt,omitempty"`
}

type Execution struct {
	ID         ID         `json:"id"`
	WorkflowID ID         `json:"workflowId"`
	Finished   bool       `json:"finished"`
	Mode       string     `json:"mode,omitempty"`
	Status     string     `json:"status,omitempty"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	StoppedAt  *time.Time `json:"stoppedAt,omitempty"`

	// Raw is the undecoded response, kept for ExecutionLog details.
	Raw json.RawMessage `json:"-"`
}

// State reports the engine status, falling back to the finished flag for
// older n8n versions that do not send one.
func (e *Execution) State() string {
	if e.Status != "" {
		return e.Status
	}
	if e.Finished {
		return "success"
	}
	return "running"
}

// ExecuteResult is the answer to a manual run.
type ExecuteResult struct {
	ExecutionID ID
	Raw         json.RawMessage
}

// executionIDOf pulls the execution id out of an execute response, which
// carries it as executionId, id, or data.executionId depending on version.
func executionIDOf(raw json.RawMessage) ID {
	var body struct {
		ExecutionID ID              `json:"executionId"`
		ID          ID              `json:"id"`
		Data        json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	switch {
	case body.ExecutionID != "":
		return body.ExecutionID
	case body.ID != "":
		return body.ID
	}
	var nested struct {
		ExecutionID ID `json:"executionId"`
	}
	if err := json.Unmarshal(body.Data, &nested); err != nil {
		return ""
	}
	return nested.ExecutionID
}

type listEnvelope[T any] struct {
	Data       []T    `json:"data"`
	NextCursor string `json:"nextCursor,omitempty"`
}

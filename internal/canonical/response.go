package canonical

import "encoding/json"

// JobState is the lifecycle state of a fine-tune job as reported through
// Poll. Terminal states never change once reached.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether the job state is final.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCancelled
}

// Item is one generated result: a message for chat operations, a text
// chunk for completions, or an embedding vector.
type Item struct {
	Role         string    `json:"role,omitempty"`
	Content      string    `json:"content,omitempty"`
	FinishReason string    `json:"finish_reason,omitempty"`
	Embedding    []float64 `json:"embedding,omitempty"`
}

// Usage carries token accounting for a call. Providers that omit usage
// get estimated counts filled in by the handler.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns the combined token count.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// Response is the unified result of a dispatched call. Operation always
// matches the originating request. Raw holds the provider's untouched
// payload for debugging; callers must never parse it.
type Response struct {
	Operation Operation       `json:"operation"`
	ID        string          `json:"id,omitempty"`
	Model     string          `json:"model,omitempty"`
	Items     []Item          `json:"items,omitempty"`
	Usage     Usage           `json:"usage"`
	JobID     string          `json:"job_id,omitempty"`
	JobState  JobState        `json:"job_state,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// Text concatenates the content of all items, in order. Convenience for
// callers that treat the response as a single generation.
func (r *Response) Text() string {
	var out string
	for _, item := range r.Items {
		out += item.Content
	}

	return out
}

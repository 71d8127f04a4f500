package canonical

// Operation identifies the kind of call a request represents. The set is
// closed: transformers switch over it exhaustively and registries declare
// support per operation.
type Operation string

const (
	OpChat          Operation = "chat"
	OpCompletion    Operation = "completion"
	OpEmbedding     Operation = "embedding"
	OpFineTune      Operation = "fine_tune"
	OpOnlinePredict Operation = "online_predict"
)

// Operations returns all defined operation kinds.
func Operations() []Operation {
	return []Operation{OpChat, OpCompletion, OpEmbedding, OpFineTune, OpOnlinePredict}
}

func validOperation(op Operation) bool {
	switch op {
	case OpChat, OpCompletion, OpEmbedding, OpFineTune, OpOnlinePredict:
		return true
	}

	return false
}

// Message is one item in a request's ordered conversation sequence.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params carries optional generation parameters. Nil pointer means the
// caller did not set the parameter; transformers drop or map each field
// per provider and never invent defaults.
type Params struct {
	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"top_p,omitempty"`
	TopK          *int     `json:"top_k,omitempty"`
	MaxTokens     *int     `json:"max_tokens,omitempty"`
	StopSequences []string `json:"stop_sequences,omitempty"`
}

// FineTuneJobSpec describes a tuning job submission. Hyperparameters are
// validated against provider-declared ranges by the transformer before
// the job is submitted; the spec itself places no bounds on them.
type FineTuneJobSpec struct {
	TrainingFile    string             `json:"training_file"`
	BaseModel       string             `json:"base_model"`
	Hyperparameters map[string]float64 `json:"hyperparameters,omitempty"`
}

// Request is the unified request every provider adapter consumes.
// Requests are value objects: construct with NewRequest and never mutate
// afterwards. Transformations always produce new provider-side values.
type Request struct {
	Operation Operation        `json:"operation"`
	Model     string           `json:"model"`
	Messages  []Message        `json:"messages,omitempty"`
	Params    Params           `json:"params,omitempty"`
	Stream    bool             `json:"stream,omitempty"`
	FineTune  *FineTuneJobSpec `json:"fine_tune,omitempty"`
}

// NewRequest validates required fields and returns an immutable request.
// Violations surface as InvalidRequest so callers see the same taxonomy
// for local validation failures as for provider rejections.
func NewRequest(op Operation, model string, msgs []Message) (*Request, error) {
	if !validOperation(op) {
		return nil, Errorf(InvalidRequest, "unknown operation kind %q", op)
	}

	if model == "" {
		return nil, Errorf(InvalidRequest, "model identifier must not be empty")
	}

	return &Request{Operation: op, Model: model, Messages: msgs}, nil
}

// Validate re-checks the construction invariants on a request that was
// decoded from the wire rather than built through NewRequest.
func (r *Request) Validate() error {
	if !validOperation(r.Operation) {
		return Errorf(InvalidRequest, "unknown operation kind %q", r.Operation)
	}

	if r.Model == "" {
		return Errorf(InvalidRequest, "model identifier must not be empty")
	}

	if r.Operation == OpFineTune && r.FineTune == nil {
		return Errorf(InvalidRequest, "fine_tune operation requires a job spec")
	}

	return nil
}

// WithParams returns a copy of the request carrying the given parameters.
func (r *Request) WithParams(p Params) *Request {
	clone := *r
	clone.Params = p

	return &clone
}

// WithStream returns a copy of the request with the streaming flag set.
func (r *Request) WithStream(stream bool) *Request {
	clone := *r
	clone.Stream = stream

	return &clone
}

// WithFineTune returns a copy of the request carrying a tuning job spec.
func (r *Request) WithFineTune(spec *FineTuneJobSpec) *Request {
	clone := *r
	clone.FineTune = spec

	return &clone
}

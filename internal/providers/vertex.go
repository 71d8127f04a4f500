package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/stuagano/litellm/internal/canonical"
	"github.com/stuagano/litellm/internal/credentials"
	"github.com/stuagano/litellm/internal/transport"
)

const (
	defaultVertexRegion  = "us-central1"
	defaultVertexProject = "default-project"
)

// VertexTransformer maps canonical requests to the Vertex AI platform:
// online prediction (chat requests are served through the same
// generateContent surface), supervised fine-tuning job submission, and
// tuning job status lookup. Endpoints embed the project and region the
// transformer was constructed with.
type VertexTransformer struct {
	baseURL string
	project string
	region  string
}

func NewVertexTransformer(baseURL, project, region string) *VertexTransformer {
	if project == "" {
		project = defaultVertexProject
	}

	if region == "" {
		region = defaultVertexRegion
	}

	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1", region)
	}

	return &VertexTransformer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		project: project,
		region:  region,
	}
}

func (t *VertexTransformer) Descriptor() Descriptor {
	return Descriptor{
		ID: "vertex",
		Operations: []canonical.Operation{
			canonical.OpChat,
			canonical.OpOnlinePredict,
			canonical.OpFineTune,
		},
		CredentialShape: credentials.ShapeOAuth,
		Endpoint:        t.baseURL,
		Streaming:       false,
	}
}

// vertexHyperparameterRanges bounds the supervised tuning
// hyperparameters Vertex accepts.
var vertexHyperparameterRanges = map[string][2]float64{
	"epoch_count":              {1, 20},
	"learning_rate_multiplier": {0.01, 10},
	"adapter_size":             {1, 16},
}

// Vertex wire formats. Prediction reuses the Gemini request/response
// envelope; tuning jobs have their own resource shape.

type vertexTuningRequest struct {
	BaseModel            string           `json:"baseModel"`
	SupervisedTuningSpec vertexTuningSpec `json:"supervisedTuningSpec"`
}

type vertexTuningSpec struct {
	TrainingDatasetURI string             `json:"trainingDatasetUri"`
	Hyperparameters    map[string]float64 `json:"hyperParameters,omitempty"`
}

type vertexTuningJob struct {
	Name       string       `json:"name,omitempty"`
	State      string       `json:"state,omitempty"`
	BaseModel  string       `json:"baseModel,omitempty"`
	CreateTime string       `json:"createTime,omitempty"`
	Error      *geminiError `json:"error,omitempty"`
}

func (t *VertexTransformer) ToProvider(req *canonical.Request) (*transport.Request, error) {
	switch req.Operation {
	case canonical.OpChat, canonical.OpOnlinePredict:
		return t.predictRequest(req)
	case canonical.OpFineTune:
		return t.tuningRequest(req)
	default:
		return nil, canonical.Errorf(canonical.UnsupportedCapability,
			"vertex transformer cannot build operation %q", req.Operation)
	}
}

func (t *VertexTransformer) predictRequest(req *canonical.Request) (*transport.Request, error) {
	if req.Stream {
		return nil, canonical.Errorf(canonical.UnsupportedCapability,
			"vertex provider does not support streaming")
	}

	var system *geminiContent

	contents := make([]geminiContent, 0, len(req.Messages))

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			if system == nil {
				system = &geminiContent{}
			}

			system.Parts = append(system.Parts, geminiPart{Text: msg.Content})

			continue
		}

		role := msg.Role
		if role == "assistant" {
			role = "model"
		}

		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}

	var genConfig *geminiGenerationConfig

	p := req.Params
	if p.Temperature != nil || p.TopP != nil || p.TopK != nil || p.MaxTokens != nil || len(p.StopSequences) > 0 {
		genConfig = &geminiGenerationConfig{
			Temperature:     p.Temperature,
			TopP:            p.TopP,
			TopK:            p.TopK,
			MaxOutputTokens: p.MaxTokens,
			StopSequences:   p.StopSequences,
		}
	}

	body, err := json.Marshal(geminiRequest{
		Contents:          contents,
		SystemInstruction: system,
		GenerationConfig:  genConfig,
	})
	if err != nil {
		return nil, canonical.Errorf(canonical.InvalidRequest, "marshal vertex predict request: %v", err)
	}

	url := fmt.Sprintf("%s/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
		t.baseURL, t.project, t.region, req.Model)

	return &transport.Request{
		Method: http.MethodPost,
		URL:    url,
		Header: make(http.Header),
		Body:   body,
	}, nil
}

func (t *VertexTransformer) tuningRequest(req *canonical.Request) (*transport.Request, error) {
	spec := req.FineTune
	if spec == nil {
		return nil, canonical.Errorf(canonical.InvalidRequest, "fine_tune operation requires a job spec")
	}

	if spec.TrainingFile == "" {
		return nil, canonical.Errorf(canonical.InvalidRequest, "fine_tune job requires a training dataset reference")
	}

	if err := validateHyperparameters(spec.Hyperparameters, vertexHyperparameterRanges); err != nil {
		return nil, err
	}

	baseModel := spec.BaseModel
	if baseModel == "" {
		baseModel = req.Model
	}

	body, err := json.Marshal(vertexTuningRequest{
		BaseModel: baseModel,
		SupervisedTuningSpec: vertexTuningSpec{
			TrainingDatasetURI: spec.TrainingFile,
			Hyperparameters:    spec.Hyperparameters,
		},
	})
	if err != nil {
		return nil, canonical.Errorf(canonical.InvalidRequest, "marshal vertex tuning request: %v", err)
	}

	return &transport.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/projects/%s/locations/%s/tuningJobs", t.baseURL, t.project, t.region),
		Header: make(http.Header),
		Body:   body,
	}, nil
}

// PollRequest builds the status lookup for a tuning job. The job ID is
// the resource name returned on submission, passed through opaquely; a
// bare numeric ID is expanded to the full resource path.
func (t *VertexTransformer) PollRequest(jobID string) (*transport.Request, error) {
	if jobID == "" {
		return nil, canonical.Errorf(canonical.InvalidRequest, "job identifier must not be empty")
	}

	resource := jobID
	if !strings.HasPrefix(resource, "projects/") {
		resource = fmt.Sprintf("projects/%s/locations/%s/tuningJobs/%s", t.project, t.region, jobID)
	}

	return &transport.Request{
		Method: http.MethodGet,
		URL:    t.baseURL + "/" + resource,
		Header: make(http.Header),
	}, nil
}

func (t *VertexTransformer) FromProvider(op canonical.Operation, resp *transport.Response) (*canonical.Response, error) {
	if op == canonical.OpFineTune {
		return t.fromTuningJob(resp)
	}

	// Prediction responses share the Gemini envelope, including the
	// google.rpc error shape.
	var parsed geminiResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		if resp.StatusCode >= 400 {
			return nil, canonical.Errorf(statusKind(resp.StatusCode),
				"vertex returned status %d", resp.StatusCode).WithCode(fmt.Sprintf("%d", resp.StatusCode))
		}

		return nil, canonical.Errorf(canonical.Unknown, "unparseable vertex response: %v", err)
	}

	if parsed.Error != nil {
		return nil, classifyGoogleError(parsed.Error, resp.StatusCode)
	}

	if resp.StatusCode >= 400 {
		return nil, canonical.Errorf(statusKind(resp.StatusCode),
			"vertex returned status %d", resp.StatusCode).WithCode(fmt.Sprintf("%d", resp.StatusCode))
	}

	out := &canonical.Response{
		Operation: op,
		ID:        parsed.ResponseID,
		Model:     parsed.ModelVersion,
		Raw:       resp.Body,
	}

	if parsed.UsageMetadata != nil {
		out.Usage = canonical.Usage{
			InputTokens:  parsed.UsageMetadata.PromptTokenCount,
			OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
		}
	}

	for _, candidate := range parsed.Candidates {
		var text strings.Builder

		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				text.WriteString(part.Text)
			}
		}

		out.Items = append(out.Items, canonical.Item{
			Role:         "assistant",
			Content:      text.String(),
			FinishReason: geminiFinishReason(candidate.FinishReason),
		})
	}

	return out, nil
}

func (t *VertexTransformer) fromTuningJob(resp *transport.Response) (*canonical.Response, error) {
	var job vertexTuningJob
	if err := json.Unmarshal(resp.Body, &job); err != nil {
		if resp.StatusCode >= 400 {
			return nil, canonical.Errorf(statusKind(resp.StatusCode),
				"vertex returned status %d", resp.StatusCode).WithCode(fmt.Sprintf("%d", resp.StatusCode))
		}

		return nil, canonical.Errorf(canonical.Unknown, "unparseable vertex tuning job: %v", err)
	}

	if job.Error != nil && job.Name == "" {
		return nil, classifyGoogleError(job.Error, resp.StatusCode)
	}

	if resp.StatusCode >= 400 {
		return nil, canonical.Errorf(statusKind(resp.StatusCode),
			"vertex returned status %d", resp.StatusCode).WithCode(fmt.Sprintf("%d", resp.StatusCode))
	}

	return &canonical.Response{
		Operation: canonical.OpFineTune,
		Model:     job.BaseModel,
		JobID:     job.Name,
		JobState:  vertexJobState(job.State),
		Raw:       resp.Body,
	}, nil
}

// vertexJobState maps tuning job states onto canonical job states.
func vertexJobState(state string) canonical.JobState {
	switch state {
	case "JOB_STATE_QUEUED", "JOB_STATE_PENDING":
		return canonical.JobPending
	case "JOB_STATE_RUNNING":
		return canonical.JobRunning
	case "JOB_STATE_SUCCEEDED":
		return canonical.JobSucceeded
	case "JOB_STATE_FAILED", "JOB_STATE_EXPIRED":
		return canonical.JobFailed
	case "JOB_STATE_CANCELLED", "JOB_STATE_CANCELLING":
		return canonical.JobCancelled
	default:
		return canonical.JobRunning
	}
}

// TransformStream is present to satisfy the Transformer contract; the
// descriptor declares streaming unsupported, so the handler rejects
// streaming requests before this is reached.
func (t *VertexTransformer) TransformStream(_ []byte, _ *StreamState) ([]canonical.Response, error) {
	return nil, canonical.Errorf(canonical.UnsupportedCapability, "vertex provider does not support streaming")
}

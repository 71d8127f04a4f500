package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	req, err := NewRequest(OpChat, "gpt-4o", []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	assert.Equal(t, OpChat, req.Operation)
	assert.Equal(t, "gpt-4o", req.Model)
	assert.Len(t, req.Messages, 1)
	assert.False(t, req.Stream)
}

func TestNewRequest_UnknownOperation(t *testing.T) {
	_, err := NewRequest(Operation("transcribe"), "gpt-4o", nil)
	require.Error(t, err)
	assert.Equal(t, InvalidRequest, KindOf(err))
}

func TestNewRequest_EmptyModel(t *testing.T) {
	_, err := NewRequest(OpChat, "", nil)
	require.Error(t, err)
	assert.Equal(t, InvalidRequest, KindOf(err))
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{
			name: "valid chat",
			req:  Request{Operation: OpChat, Model: "gpt-4o"},
		},
		{
			name:    "unknown operation",
			req:     Request{Operation: "speech", Model: "gpt-4o"},
			wantErr: true,
		},
		{
			name:    "missing model",
			req:     Request{Operation: OpChat},
			wantErr: true,
		},
		{
			name:    "fine_tune without job spec",
			req:     Request{Operation: OpFineTune, Model: "gpt-4o-mini"},
			wantErr: true,
		},
		{
			name: "fine_tune with job spec",
			req: Request{
				Operation: OpFineTune,
				Model:     "gpt-4o-mini",
				FineTune:  &FineTuneJobSpec{TrainingFile: "file-abc"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, InvalidRequest, KindOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequest_WithCopiesDoNotMutateOriginal(t *testing.T) {
	req, err := NewRequest(OpChat, "claude-sonnet-4", []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	temp := 0.5
	withParams := req.WithParams(Params{Temperature: &temp})
	withStream := req.WithStream(true)

	assert.Nil(t, req.Params.Temperature, "original request params should be untouched")
	assert.False(t, req.Stream, "original request stream flag should be untouched")
	assert.Equal(t, &temp, withParams.Params.Temperature)
	assert.True(t, withStream.Stream)
	assert.Equal(t, req.Messages, withStream.Messages)
}

func TestOperations_CoversAllKinds(t *testing.T) {
	ops := Operations()
	assert.Len(t, ops, 5)

	for _, op := range ops {
		assert.True(t, validOperation(op))
	}
}

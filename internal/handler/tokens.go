package handler

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/stuagano/litellm/internal/canonical"
)

// backfillUsage fills in estimated token counts when the provider
// response carries no usage block, so callers always see usage metrics.
// Estimates use the cl100k_base encoding regardless of provider and
// never overwrite provider-reported counts.
func (h *Handler) backfillUsage(req *canonical.Request, resp *canonical.Response) {
	if resp.Usage.Total() > 0 {
		return
	}

	if req.Operation != canonical.OpChat && req.Operation != canonical.OpCompletion {
		return
	}

	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		h.logger.Warn("token estimation unavailable", "error", err)
		return
	}

	var input int
	for _, msg := range req.Messages {
		input += len(encoding.Encode(msg.Content, nil, nil))
	}

	resp.Usage = canonical.Usage{
		InputTokens:  input,
		OutputTokens: len(encoding.Encode(resp.Text(), nil, nil)),
	}
}

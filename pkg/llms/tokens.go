package llms

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// CountTokens estimates the token count of a text with the cl100k_base
// tokenizer. Falls back to a bytes/4 heuristic if the encoding cannot be
// loaded.
func CountTokens(text string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err == nil {
			encoding = enc
		}
	})
	if encoding == nil {
		return len(text) / 4
	}
	return len(encoding.Encode(text, nil, nil))
}

// EstimateUsage fills in missing token counts on a response so that cache
// hits always have something to account. Providers that report usage are
// left untouched.
func EstimateUsage(req *Request, resp *Response) {
	if resp.Usage.TotalTokens > 0 {
		return
	}
	input := CountTokens(req.System)
	for _, msg := range req.Messages {
		input += CountTokens(msg.Text)
	}
	output := CountTokens(resp.Content)
	resp.Usage = Usage{
		InputTokens:  input,
		OutputTokens: output,
		TotalTokens:  input + output,
	}
}

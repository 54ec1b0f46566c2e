package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"inboxagent/internal/heuristic"
	"inboxagent/internal/model"
)

// Client calls the external analysis service. The engine never blocks on
// it: every failure, timeout included, is reported as "no opinion" by the
// caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 5 * time.Second // 超时兜底，避免 worker 卡死
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type analyzeRequest struct {
	Subject     string `json:"subject"`
	BodyPreview string `json:"body_preview"`
	Sender      string `json:"sender"`
	Context     string `json:"context"`
}

type analyzeResponse struct {
	IsActionable    bool    `json:"is_actionable"`
	SuggestedAction string  `json:"suggested_action"`
	Confidence      float64 `json:"confidence"`
	Reasoning       string  `json:"reasoning"`
}

// Analyze requests an opinion on a signal.
func (c *Client) Analyze(ctx context.Context, sig model.Signal) (*heuristic.LLMAnalysis, error) {
	reqBody := analyzeRequest{
		Subject:     sig.Subject,
		BodyPreview: sig.BodyPreview,
		Sender:      sig.Sender,
		Context:     string(sig.SourceType),
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analysis service error: %d", resp.StatusCode)
	}

	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	action, _ := model.ParseDecisionType(out.SuggestedAction)
	return &heuristic.LLMAnalysis{
		IsActionable:    out.IsActionable,
		SuggestedAction: action,
		Confidence:      out.Confidence,
		Reasoning:       out.Reasoning,
	}, nil
}

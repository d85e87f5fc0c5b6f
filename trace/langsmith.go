package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LangSmithSink posts runs to the LangSmith run-ingest API.
type LangSmithSink struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewLangSmithSink creates a sink posting to endpoint, e.g.
// https://api.smith.langchain.com.
func NewLangSmithSink(endpoint, apiKey string) *LangSmithSink {
	return &LangSmithSink{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *LangSmithSink) Export(ctx context.Context, run *Run) error {
	body, err := json.Marshal(run)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/runs", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("langsmith: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (s *LangSmithSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPSink posts messages as JSON to a provider endpoint.
type HTTPSink struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPSink returns a sink posting to url.
func NewHTTPSink(name, url string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSink{name: name, url: url, client: &http.Client{Timeout: timeout}}
}

// Name implements Sink.
func (s *HTTPSink) Name() string { return s.name }

// Deliver implements Sink. Any non-2xx status is a failure.
func (s *HTTPSink) Deliver(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", msg.ID)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s responded %d", s.name, resp.StatusCode)
	}
	return nil
}

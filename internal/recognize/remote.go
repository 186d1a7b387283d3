package recognize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/loadlane/delivery-ocr-service/internal/models"
)

// RemoteProvider calls the dedicated recognition endpoint. The endpoint
// accepts {"image": "<base64>"} and answers with the shared structured
// JSON, occasionally wrapped once more as a JSON-encoded string.
type RemoteProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewRemoteProvider creates a provider for the remote recognition endpoint.
// Timeouts are driven by the caller's context, not the http client.
func NewRemoteProvider(endpoint, apiKey string) *RemoteProvider {
	return &RemoteProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{},
	}
}

// Name returns the provider name
func (p *RemoteProvider) Name() string {
	return "remote"
}

// Recognize sends the image to the remote endpoint and parses the
// structured response.
func (p *RemoteProvider) Recognize(ctx context.Context, image []byte) (*models.RawResult, error) {
	reqBody, err := json.Marshal(map[string]string{
		"image": base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote recognition call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("remote recognition returned status %d: %s", resp.StatusCode, string(body))
	}

	return decodeStructured(body)
}

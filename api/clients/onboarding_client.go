package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ruteri/device-onboarding-backend/api"
	"github.com/ruteri/device-onboarding-backend/interfaces"
)

// OnboardingClient asks a running onboarding server to process records.
type OnboardingClient struct {
	// ServerAddr is the base URL of the onboarding server
	ServerAddr string

	// HTTPClient defaults to http.DefaultClient
	HTTPClient *http.Client
}

// Onboard requests onboarding of the record at loc. Workflow failures are
// returned in the response, not as an error; the error covers transport
// failures and malformed replies.
func (c *OnboardingClient) Onboard(ctx context.Context, loc interfaces.RecordLocation) (*api.RecordResponse, error) {
	body, err := json.Marshal(api.OnboardRequest{Bucket: loc.Container, Key: loc.Key})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/v1/records/onboard", c.ServerAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not request onboarding endpoint: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read onboarding response: %w", err)
	}

	var parsed api.RecordResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil || parsed.State == "" {
		return nil, fmt.Errorf("onboarding endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}

	return &parsed, nil
}

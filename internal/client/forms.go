package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"burrito-analytics/internal/model"
	"burrito-analytics/internal/pkg/logger"
)

// FormsClient fetches form definitions from the forms service.
type FormsClient interface {
	GetForm(ctx context.Context, formID string) (*model.Form, error)
}

type formsClient struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// NewFormsClient creates a forms service client with a hard request timeout.
func NewFormsClient(baseURL string, timeout time.Duration, log *logger.Logger) FormsClient {
	return &formsClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With("client", "forms"),
	}
}

func (c *formsClient) GetForm(ctx context.Context, formID string) (*model.Form, error) {
	url := fmt.Sprintf("%s/v1/forms/%s", c.baseURL, formID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &UpstreamError{Service: "forms", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("form fetch failed", "formId", formID, "error", err)
		return nil, &UpstreamError{Service: "forms", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, &UpstreamError{Service: "forms", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var form model.Form
	if err := json.NewDecoder(resp.Body).Decode(&form); err != nil {
		return nil, &UpstreamError{Service: "forms", Err: fmt.Errorf("decode form: %w", err)}
	}
	return &form, nil
}

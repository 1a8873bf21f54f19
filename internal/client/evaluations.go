package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"burrito-analytics/internal/model"
	"burrito-analytics/internal/pkg/logger"
)

// EvaluationFilter selects evaluations by form and created-at range.
type EvaluationFilter struct {
	FormID string
	From   *time.Time
	To     *time.Time
}

// Paging is a fixed-size page request. Callers loop over increasing offsets
// until a short page comes back.
type Paging struct {
	Limit  int
	Offset int
}

// EvaluationsClient queries submitted evaluations from the evaluations service.
type EvaluationsClient interface {
	Query(ctx context.Context, filter EvaluationFilter, paging Paging) ([]*model.Evaluation, error)
}

type evaluationsClient struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// NewEvaluationsClient creates an evaluations service client with a hard
// request timeout.
func NewEvaluationsClient(baseURL string, timeout time.Duration, log *logger.Logger) EvaluationsClient {
	return &evaluationsClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With("client", "evaluations"),
	}
}

type evaluationQueryRequest struct {
	Filter evaluationQueryFilter `json:"filter"`
	Paging evaluationQueryPaging `json:"paging"`
}

type evaluationQueryFilter struct {
	FormID    string                `json:"formId"`
	CreatedAt *evaluationRangeBound `json:"createdAt,omitempty"`
}

type evaluationRangeBound struct {
	Gte *time.Time `json:"gte,omitempty"`
	Lte *time.Time `json:"lte,omitempty"`
}

type evaluationQueryPaging struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (c *evaluationsClient) Query(ctx context.Context, filter EvaluationFilter, paging Paging) ([]*model.Evaluation, error) {
	reqBody := evaluationQueryRequest{
		Filter: evaluationQueryFilter{FormID: filter.FormID},
		Paging: evaluationQueryPaging{Limit: paging.Limit, Offset: paging.Offset},
	}
	if filter.From != nil || filter.To != nil {
		reqBody.Filter.CreatedAt = &evaluationRangeBound{Gte: filter.From, Lte: filter.To}
	}

	raw, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &UpstreamError{Service: "evaluations", Err: err}
	}

	url := c.baseURL + "/v1/evaluations/query"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, &UpstreamError{Service: "evaluations", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("evaluation query failed", "formId", filter.FormID, "offset", paging.Offset, "error", err)
		return nil, &UpstreamError{Service: "evaluations", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Service: "evaluations", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var page []*model.Evaluation
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, &UpstreamError{Service: "evaluations", Err: fmt.Errorf("decode evaluations: %w", err)}
	}
	return page, nil
}

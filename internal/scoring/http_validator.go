package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/projects"
)

// HTTPValidator calls an external image/geo validation service
type HTTPValidator struct {
	url             string
	client          *http.Client
	maxTries        uint
	initialInterval time.Duration
	logger          *zap.Logger
}

type validationRequest struct {
	ProjectID    string  `json:"project_id"`
	Species      string  `json:"species"`
	AreaHectares float64 `json:"area_hectares"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	ImageRef     string  `json:"image_ref"`
}

type validationResponse struct {
	Score *float64 `json:"score"`
}

// NewHTTPValidator creates a validator posting to url. maxRetries counts extra attempts after the first.
func NewHTTPValidator(url string, client *http.Client, maxRetries uint, logger *zap.Logger) *HTTPValidator {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPValidator{
		url:             url,
		client:          client,
		maxTries:        maxRetries + 1,
		initialInterval: 500 * time.Millisecond,
		logger:          logger,
	}
}

func (v *HTTPValidator) Validate(ctx context.Context, project *projects.Project) (float64, error) {
	body, err := json.Marshal(validationRequest{
		ProjectID:    project.ID.String(),
		Species:      project.Species,
		AreaHectares: project.AreaHectares,
		Lat:          project.GPS.Lat,
		Lng:          project.GPS.Lng,
		ImageRef:     project.ImageRef,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to encode validation request: %w", err)
	}

	attempt := 0
	operation := func() (float64, error) {
		attempt++
		score, err := v.call(ctx, body)
		if err != nil {
			v.logger.Debug("Validator call failed",
				zap.String("project_id", project.ID.String()),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return score, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = v.initialInterval
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(v.maxTries))
}

func (v *HTTPValidator) call(ctx context.Context, body []byte) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("failed to build validation request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("validator request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("failed to read validator response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return 0, fmt.Errorf("validator returned status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return 0, backoff.Permanent(fmt.Errorf("validator rejected request with status %d: %s", resp.StatusCode, bytes.TrimSpace(data)))
	}

	var out validationResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, backoff.Permanent(fmt.Errorf("failed to decode validator response: %w", err))
	}
	if out.Score == nil {
		return 0, backoff.Permanent(fmt.Errorf("validator response has no score"))
	}
	return *out.Score, nil
}

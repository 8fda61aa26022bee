package model

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

type remoteRequest struct {
	Features []string    `json:"features"`
	Values   [][]float64 `json:"values"`
}

type remoteResponse struct {
	Probabilities [][]float64 `json:"probabilities"`
	Error         string      `json:"error,omitempty"`
}

// Remote delegates inference to a model server that owns the artifact.
// Requests are not retried.
type Remote struct {
	client *resty.Client
	names  []string
}

func NewRemote(baseURL string, timeout time.Duration, names []string) *Remote {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Remote{client: client, names: names}
}

func (m *Remote) PredictProba(ctx context.Context, vec []float64) (float64, error) {
	var out remoteResponse
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(remoteRequest{Features: m.names, Values: [][]float64{vec}}).
		SetResult(&out).
		SetError(&out).
		Post("/predict")
	if err != nil {
		return 0, fmt.Errorf("calling model server: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("model server returned %d: %s", resp.StatusCode(), out.Error)
	}
	if len(out.Probabilities) != 1 || len(out.Probabilities[0]) != 2 {
		return 0, fmt.Errorf("model server returned malformed probabilities %v", out.Probabilities)
	}

	p := out.Probabilities[0][1]
	if p < 0 || p > 1 {
		return 0, fmt.Errorf("model server returned probability %v outside [0,1]", p)
	}
	return p, nil
}

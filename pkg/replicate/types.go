package replicate

import (
	"encoding/json"
	"net/http"
)

type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

type predictionRequest struct {
	Input Input `json:"input"`
}

type Input struct {
	Prompt       string `json:"prompt"`
	InputImage   string `json:"input_image"` // data URI
	OutputFormat string `json:"output_format,omitempty"`
}

// Prediction is the subset of Replicate's prediction resource this client
// reads. Fields the provider adds are ignored.
type Prediction struct {
	ID     string          `json:"id"`
	Status Status          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// OutputURL extracts the output image URL. Depending on the model the
// output is either a single URI or a list of URIs.
func (p *Prediction) OutputURL() (string, bool) {
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil && single != "" {
		return single, true
	}

	var list []string
	if err := json.Unmarshal(p.Output, &list); err == nil && len(list) > 0 {
		return list[0], true
	}

	return "", false
}

type Status string

const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

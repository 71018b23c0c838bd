package replicate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Zetic/zpt/pkg/entities"
)

const (
	defaultBaseURL = "https://api.replicate.com/v1"

	// DefaultModel is the hosted image-editing model predictions are
	// submitted to.
	DefaultModel = "black-forest-labs/flux-kontext-max"

	DefaultPollInterval = 2 * time.Second
	DefaultTimeout      = 5 * time.Minute
)

// SleepFunc suspends between poll attempts. It returns early with the
// context error when ctx is canceled.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ImageFetcher downloads the prediction output with the same size and
// type discipline as attachment downloads.
type ImageFetcher interface {
	FetchImage(ctx context.Context, url string, maxBytes int64) (*entities.ImageAsset, error)
}

type Options struct {
	BaseURL        string        // defaults to the public Replicate API
	Model          string        // defaults to DefaultModel
	PollInterval   time.Duration // defaults to DefaultPollInterval
	Timeout        time.Duration // defaults to DefaultTimeout
	MaxOutputBytes int64
	Sleep          SleepFunc // defaults to a context-aware time.Sleep
}

// Client submits image-edit predictions and polls them to a terminal
// state. It keeps no state between requests and never retries a failed
// prediction.
type Client struct {
	apiToken   string
	httpClient HTTPClient
	fetcher    ImageFetcher

	baseURL        string
	model          string
	pollInterval   time.Duration
	timeout        time.Duration
	maxOutputBytes int64
	sleep          SleepFunc
}

func NewClient(apiToken string, httpClient HTTPClient, fetcher ImageFetcher, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepWithContext
	}

	return &Client{
		apiToken:       apiToken,
		httpClient:     httpClient,
		fetcher:        fetcher,
		baseURL:        opts.BaseURL,
		model:          opts.Model,
		pollInterval:   opts.PollInterval,
		timeout:        opts.Timeout,
		maxOutputBytes: opts.MaxOutputBytes,
		sleep:          opts.Sleep,
	}
}

// Edit submits the image with the prompt, waits for the prediction to
// reach a terminal state and downloads the output image. A prediction
// still running when the timeout elapses is abandoned, not canceled
// remotely.
func (c *Client) Edit(ctx context.Context, img *entities.ImageAsset, prompt string) (*entities.ImageAsset, error) {
	pred, err := c.createPrediction(ctx, img, prompt)
	if err != nil {
		return nil, fmt.Errorf("creating prediction: %w", err)
	}

	pred, err = c.waitForPrediction(ctx, pred)
	if err != nil {
		return nil, err
	}

	switch pred.Status {
	case StatusSucceeded:
	case StatusFailed:
		return nil, entities.NewFailure(entities.FailureKindRemoteRejected, "model reported failure: %s", pred.Error)
	case StatusCanceled:
		return nil, entities.NewFailure(entities.FailureKindRemoteRejected, "prediction was canceled")
	default:
		return nil, entities.NewFailure(entities.FailureKindRemoteRejected, "unexpected terminal status: %s", pred.Status)
	}

	url, ok := pred.OutputURL()
	if !ok {
		return nil, entities.NewFailure(entities.FailureKindRemoteRejected, "prediction succeeded without output")
	}

	out, err := c.fetcher.FetchImage(ctx, url, c.maxOutputBytes)
	if err != nil {
		return nil, fmt.Errorf("downloading output image: %w", err)
	}

	return out, nil
}

func (c *Client) createPrediction(ctx context.Context, img *entities.ImageAsset, prompt string) (*Prediction, error) {
	request := predictionRequest{
		Input: Input{
			Prompt:       prompt,
			InputImage:   dataURI(img),
			OutputFormat: "jpg",
		},
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshaling body: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s/predictions", c.baseURL, c.model)

	return c.doPredictionRequest(ctx, http.MethodPost, url, bytes.NewReader(body))
}

func (c *Client) getPrediction(ctx context.Context, id string) (*Prediction, error) {
	url := fmt.Sprintf("%s/predictions/%s", c.baseURL, id)

	return c.doPredictionRequest(ctx, http.MethodGet, url, nil)
}

func (c *Client) doPredictionRequest(ctx context.Context, method, url string, body io.Reader) (*Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiToken))
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, entities.NewFailure(entities.FailureKindNetwork, "doing request: %v", err)
	}

	defer func() { _ = res.Body.Close() }()

	switch {
	case res.StatusCode == http.StatusOK || res.StatusCode == http.StatusCreated:
	case res.StatusCode == http.StatusPaymentRequired || res.StatusCode == http.StatusTooManyRequests:
		return nil, entities.NewFailure(entities.FailureKindQuotaExceeded, "provider returned status %d", res.StatusCode)
	case res.StatusCode == http.StatusUnprocessableEntity:
		resBody, _ := io.ReadAll(res.Body)
		return nil, entities.NewFailure(entities.FailureKindRemoteRejected, "provider rejected input: %s", resBody)
	default:
		resBody, _ := io.ReadAll(res.Body)
		return nil, entities.NewFailure(entities.FailureKindNetwork, "unexpected status code: %d: %s", res.StatusCode, resBody)
	}

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, entities.NewFailure(entities.FailureKindNetwork, "reading response body: %v", err)
	}

	var pred Prediction
	if err = json.Unmarshal(resBody, &pred); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if pred.ID == "" {
		return nil, entities.NewFailure(entities.FailureKindRemoteRejected, "response carries no prediction id")
	}

	return &pred, nil
}

// waitForPrediction polls until the prediction is terminal or the attempt
// budget derived from the configured timeout is spent.
func (c *Client) waitForPrediction(ctx context.Context, pred *Prediction) (*Prediction, error) {
	attempts := int(c.timeout / c.pollInterval)
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		if pred.Status.Terminal() {
			return pred, nil
		}

		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return nil, fmt.Errorf("waiting between polls: %w", err)
		}

		var err error
		pred, err = c.getPrediction(ctx, pred.ID)
		if err != nil {
			return nil, fmt.Errorf("polling prediction: %w", err)
		}
	}

	if pred.Status.Terminal() {
		return pred, nil
	}

	return nil, entities.NewFailure(
		entities.FailureKindTimeout,
		"prediction %s not finished after %s", pred.ID, c.timeout,
	)
}

func dataURI(img *entities.ImageAsset) string {
	return "data:" + img.MIME + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package fetch

import (
	"context"
	"io"
	"net/http"

	"github.com/Zetic/zpt/pkg/entities"
)

type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Fetcher downloads images over HTTP with a hard size bound.
type Fetcher struct {
	httpClient HTTPClient
}

func NewFetcher(httpClient HTTPClient) *Fetcher {
	return &Fetcher{
		httpClient: httpClient,
	}
}

// FetchImage performs a streaming GET of url. It fails with a validation
// failure when the image exceeds maxBytes (declared or observed) or is not
// a supported image type, and with a network failure on transport problems.
func (f *Fetcher) FetchImage(ctx context.Context, url string, maxBytes int64) (*entities.ImageAsset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, entities.NewFailure(entities.FailureKindNetwork, "creating request: %v", err)
	}

	res, err := f.httpClient.Do(req)
	if err != nil {
		return nil, entities.NewFailure(entities.FailureKindNetwork, "doing request: %v", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return nil, entities.NewFailure(entities.FailureKindNetwork, "unexpected status code: %d", res.StatusCode)
	}

	if res.ContentLength > maxBytes {
		return nil, entities.NewFailure(
			entities.FailureKindValidation,
			"image is too large: %d bytes, limit is %d", res.ContentLength, maxBytes,
		)
	}

	// Read one byte past the limit so undeclared oversized bodies are
	// caught without buffering the whole response.
	data, err := io.ReadAll(io.LimitReader(res.Body, maxBytes+1))
	if err != nil {
		return nil, entities.NewFailure(entities.FailureKindNetwork, "reading response body: %v", err)
	}

	if int64(len(data)) > maxBytes {
		return nil, entities.NewFailure(
			entities.FailureKindValidation,
			"image is too large: more than %d bytes", maxBytes,
		)
	}

	mimeType := entities.NormalizeMIME(res.Header.Get("Content-Type"))
	if !entities.IsSupportedImageType(mimeType) {
		mimeType = entities.NormalizeMIME(http.DetectContentType(data))
	}
	if !entities.IsSupportedImageType(mimeType) {
		return nil, entities.NewFailure(entities.FailureKindValidation, "unsupported image type: %q", mimeType)
	}

	return &entities.ImageAsset{
		Data: data,
		MIME: mimeType,
	}, nil
}

package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// GetJSON performs a GET and decodes a 2xx body into TSuccess. For any other
// status the decoded value is nil and the status code is returned with an error.
func GetJSON[TSuccess any](ctx context.Context, client *ObservableClient, url string, opts ...RequestOption) (*TSuccess, int, error) {
	resp, err := client.Get(ctx, url, append([]RequestOption{WithHeader("Accept", "application/json")}, opts...)...)
	if err != nil {
		return nil, 0, err
	}

	body, err := client.ReadBody(resp)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, resp.StatusCode, fmt.Errorf("httpclient: unexpected status %d from %s", resp.StatusCode, url)
	}

	var out TSuccess
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("httpclient: decode response: %w", err)
	}
	return &out, resp.StatusCode, nil
}

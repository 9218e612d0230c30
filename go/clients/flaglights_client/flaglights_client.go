// Package flaglights_client talks to a running flaglights HTTP API. The CLI
// uses it for every command except serve.
package flaglights_client

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/flaglights/go/clients"
)

type FlaglightsClient struct {
	*clients.BaseClient
}

func NewFlaglightsClient(baseURL string, timeout time.Duration) *FlaglightsClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := &FlaglightsClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	client.SetHeader(ContentTypeHeader, JSONContentType)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	return client
}

// APIError is a non-2xx answer carrying the server's error message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// apiError unwraps the JSON error body of a StatusError when there is one.
func apiError(err error) error {
	var statusErr *clients.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}
	var body struct {
		Error string `json:"error"`
	}
	if jsonErr := json.Unmarshal([]byte(statusErr.Body), &body); jsonErr != nil || body.Error == "" {
		return err
	}
	return &APIError{StatusCode: statusErr.StatusCode, Message: body.Error}
}

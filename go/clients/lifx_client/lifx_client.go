package lifx_client

import (
	"errors"
	"time"

	"github.com/mcdev12/flaglights/go/clients"
)

var (
	// ErrInvalidCredential is returned when the API rejects the bearer token.
	ErrInvalidCredential = errors.New("invalid LIFX API token")

	// ErrNoToken is returned when a request is made before a token is set.
	ErrNoToken = errors.New("LIFX API token not set")
)

type LIFXClient struct {
	*clients.BaseClient
}

func NewLIFXClient(baseURL string, timeout time.Duration) *LIFXClient {
	if baseURL == "" {
		baseURL = BaseURL
	}
	client := &LIFXClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	client.SetHeader(ContentTypeHeader, JSONContentType)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	return client
}

// SetToken installs the bearer credential; an empty token removes it.
func (c *LIFXClient) SetToken(token string) {
	if token == "" {
		c.RemoveHeader(AuthorizationHeader)
		return
	}
	c.SetHeader(AuthorizationHeader, "Bearer "+token)
}

// HasToken reports whether a credential is installed.
func (c *LIFXClient) HasToken() bool {
	return c.Header(AuthorizationHeader) != ""
}

package openf1_client

import (
	"time"

	"github.com/mcdev12/flaglights/go/clients"
)

type OpenF1Client struct {
	*clients.BaseClient
}

func NewOpenF1Client(baseURL string, timeout time.Duration) *OpenF1Client {
	if baseURL == "" {
		baseURL = BaseURL
	}
	client := &OpenF1Client{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	client.SetHeader("Accept", "application/json")
	client.SetHeader("Cache-Control", "no-cache")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	return client
}

package openf1_client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mcdev12/flaglights/go/internal/models"
)

// ErrMalformedResponse is returned when the feed answers with something other
// than a list of race control messages.
var ErrMalformedResponse = errors.New("malformed race control response")

// RaceControl fetches the most recent race control messages for a session.
func (c *OpenF1Client) RaceControl(ctx context.Context, sessionKey string, limit int) ([]models.RaceControlMessage, error) {
	if sessionKey == "" {
		sessionKey = LatestSession
	}
	if limit <= 0 {
		limit = DefaultResultLimit
	}

	params := url.Values{}
	params.Set("session_key", sessionKey)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.Get(ctx, RaceControlEndpoint+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to get race control messages: %w", err)
	}

	var messages []models.RaceControlMessage
	if err := json.Unmarshal(body, &messages); err != nil {
		return nil, fmt.Errorf("%w: %v, raw response: %s", ErrMalformedResponse, err, truncate(string(body), 256))
	}

	return messages, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

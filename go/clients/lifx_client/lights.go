package lifx_client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mcdev12/flaglights/go/clients"
	"github.com/mcdev12/flaglights/go/internal/models"
)

type stateRequest struct {
	Power      string  `json:"power,omitempty"`
	Color      string  `json:"color,omitempty"`
	Brightness float64 `json:"brightness"`
	Duration   float64 `json:"duration"`
}

type pulseRequest struct {
	Color     string  `json:"color"`
	FromColor string  `json:"from_color"`
	Period    float64 `json:"period"`
	Cycles    int     `json:"cycles"`
	PowerOn   bool    `json:"power_on"`
}

// ListLights returns every light visible to the token.
func (c *LIFXClient) ListLights(ctx context.Context) ([]models.Device, error) {
	if !c.HasToken() {
		return nil, ErrNoToken
	}

	body, err := c.Get(ctx, LightsAllEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to list lights: %w", mapError(err))
	}

	var devices []models.Device
	if err := json.Unmarshal(body, &devices); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}

	return devices, nil
}

// SetState applies a direct state to the selector.
func (c *LIFXClient) SetState(ctx context.Context, selector string, state models.LightState) error {
	if !c.HasToken() {
		return ErrNoToken
	}

	payload, err := json.Marshal(stateRequest{
		Power:      state.Power,
		Color:      state.Color.String(),
		Brightness: state.Brightness,
		Duration:   state.Duration.Seconds(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if _, err := c.Put(ctx, fmt.Sprintf(StateEndpointFmt, selector), bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("failed to set state: %w", mapError(err))
	}
	return nil
}

// Pulse runs the pulse effect on the selector.
func (c *LIFXClient) Pulse(ctx context.Context, selector string, effect models.PulseEffect) error {
	if !c.HasToken() {
		return ErrNoToken
	}

	payload, err := json.Marshal(pulseRequest{
		Color:     effect.Color.WithBrightness(effect.Brightness),
		FromColor: effect.FromColor.WithBrightness(effect.FromBrightness),
		Period:    effect.Period.Seconds(),
		Cycles:    effect.Cycles,
		PowerOn:   effect.PowerOn,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal pulse effect: %w", err)
	}

	if _, err := c.Post(ctx, fmt.Sprintf(PulseEndpointFmt, selector), bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("failed to run pulse effect: %w", mapError(err))
	}
	return nil
}

func mapError(err error) error {
	if clients.StatusCode(err) == http.StatusUnauthorized {
		return fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	return err
}

package flaglights_client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/mcdev12/flaglights/go/internal/gateway"
	"github.com/mcdev12/flaglights/go/internal/models"
	"github.com/mcdev12/flaglights/go/internal/scheduler"
	"github.com/mcdev12/flaglights/go/internal/trackstatus"
)

func (c *FlaglightsClient) Status(ctx context.Context) (trackstatus.Snapshot, error) {
	var snap trackstatus.Snapshot
	err := c.getJSON(ctx, StatusEndpoint, &snap)
	return snap, err
}

// Actions lists the server's pending and recently executed delayed actions.
func (c *FlaglightsClient) Actions(ctx context.Context) ([]scheduler.Action, error) {
	var resp gateway.ActionsResponse
	if err := c.getJSON(ctx, ActionsEndpoint, &resp); err != nil {
		return nil, err
	}
	return resp.Actions, nil
}

func (c *FlaglightsClient) Delay(ctx context.Context) (int, error) {
	var resp gateway.DelayResponse
	if err := c.getJSON(ctx, DelayEndpoint, &resp); err != nil {
		return 0, err
	}
	return resp.Seconds, nil
}

func (c *FlaglightsClient) SetDelay(ctx context.Context, seconds int) (int, error) {
	var resp gateway.DelayResponse
	if err := c.putJSON(ctx, DelayEndpoint, gateway.DelayRequest{Seconds: &seconds}, &resp); err != nil {
		return 0, err
	}
	return resp.Seconds, nil
}

func (c *FlaglightsClient) Devices(ctx context.Context, refresh bool) (gateway.DevicesResponse, error) {
	var resp gateway.DevicesResponse
	if refresh {
		err := c.postJSON(ctx, RefreshDevicesEndpoint, nil, &resp)
		return resp, err
	}
	err := c.getJSON(ctx, DevicesEndpoint, &resp)
	return resp, err
}

func (c *FlaglightsClient) SelectDevices(ctx context.Context, ids []string) ([]string, error) {
	var resp gateway.SelectResponse
	if err := c.putJSON(ctx, SelectedDevicesEndpoint, gateway.SelectRequest{DeviceIDs: ids}, &resp); err != nil {
		return nil, err
	}
	return resp.Selected, nil
}

func (c *FlaglightsClient) ToggleDevice(ctx context.Context, id string) ([]string, error) {
	var resp gateway.SelectResponse
	endpoint := fmt.Sprintf(ToggleDeviceEndpointFmt, url.PathEscape(id))
	if err := c.postJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Selected, nil
}

func (c *FlaglightsClient) ApplyFlag(ctx context.Context, flag models.Flag) (trackstatus.Snapshot, error) {
	var snap trackstatus.Snapshot
	endpoint := fmt.Sprintf(ApplyFlagEndpointFmt, url.PathEscape(string(flag)))
	err := c.postJSON(ctx, endpoint, nil, &snap)
	return snap, err
}

func (c *FlaglightsClient) Connect(ctx context.Context, token string) (trackstatus.Snapshot, error) {
	var snap trackstatus.Snapshot
	err := c.postJSON(ctx, ConnectEndpoint, gateway.ConnectRequest{Token: token}, &snap)
	return snap, err
}

func (c *FlaglightsClient) Disconnect(ctx context.Context) (trackstatus.Snapshot, error) {
	var snap trackstatus.Snapshot
	err := c.postJSON(ctx, DisconnectEndpoint, nil, &snap)
	return snap, err
}

func (c *FlaglightsClient) InjectTestMessage(ctx context.Context, req gateway.TestMessageRequest) (models.RaceControlMessage, error) {
	var msg models.RaceControlMessage
	err := c.postJSON(ctx, TestMessageEndpoint, req, &msg)
	return msg, err
}

func (c *FlaglightsClient) ClearTestMessage(ctx context.Context) error {
	_, err := c.Delete(ctx, TestMessageEndpoint)
	return apiError(err)
}

func (c *FlaglightsClient) getJSON(ctx context.Context, endpoint string, out any) error {
	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return apiError(err)
	}
	return decode(body, out)
}

func (c *FlaglightsClient) postJSON(ctx context.Context, endpoint string, in, out any) error {
	reader, err := encode(in)
	if err != nil {
		return err
	}
	body, err := c.Post(ctx, endpoint, reader)
	if err != nil {
		return apiError(err)
	}
	return decode(body, out)
}

func (c *FlaglightsClient) putJSON(ctx context.Context, endpoint string, in, out any) error {
	reader, err := encode(in)
	if err != nil {
		return err
	}
	body, err := c.Put(ctx, endpoint, reader)
	if err != nil {
		return apiError(err)
	}
	return decode(body, out)
}

func encode(in any) (*bytes.Reader, error) {
	if in == nil {
		return bytes.NewReader([]byte("{}")), nil
	}
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return bytes.NewReader(data), nil
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

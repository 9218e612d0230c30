package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mcdev12/flaglights/go/internal/delay"
	"github.com/mcdev12/flaglights/go/internal/lighting"
	"github.com/mcdev12/flaglights/go/internal/models"
	"github.com/mcdev12/flaglights/go/internal/scheduler"
	"github.com/mcdev12/flaglights/go/internal/trackstatus"
)

type fakeController struct {
	mu         sync.Mutex
	snap       trackstatus.Snapshot
	devices    []models.Device
	testMsg    *models.RaceControlMessage
	applied    []models.Flag
	applyErr   error
	connectErr error
	tokens     []string
	actions    []scheduler.Action
}

func newFakeController() *fakeController {
	return &fakeController{
		snap: trackstatus.Snapshot{
			Flag:            models.FlagGreen,
			DelaySeconds:    5,
			SelectedDevices: []string{},
		},
		devices: []models.Device{
			{ID: "d1", Label: "Desk", Connected: true},
			{ID: "d2", Label: "Shelf", Connected: true},
		},
	}
}

func (f *fakeController) Snapshot() trackstatus.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := f.snap
	snap.SelectedDevices = append([]string{}, f.snap.SelectedDevices...)
	return snap
}

func (f *fakeController) SetDelay(_ context.Context, seconds int) error {
	if seconds < 0 {
		return delay.ErrNegativeDelay
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.DelaySeconds = seconds
	return nil
}

func (f *fakeController) InjectTestMessage(_ context.Context, msg models.RaceControlMessage) models.RaceControlMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.Date = time.Date(2026, 5, 24, 13, 0, 0, 0, time.UTC)
	f.testMsg = &msg
	f.snap.TestMessageActive = true
	return msg
}

func (f *fakeController) ClearTestMessage() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.testMsg = nil
	f.snap.TestMessageActive = false
}

func (f *fakeController) ApplyManual(_ context.Context, flag models.Flag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, flag)
	f.snap.AppliedFlag = flag
	return nil
}

func (f *fakeController) Connect(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	if f.connectErr != nil {
		return f.connectErr
	}
	f.snap.Connected = true
	return nil
}

func (f *fakeController) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Connected = false
	return nil
}

func (f *fakeController) Devices() []models.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Device(nil), f.devices...)
}

func (f *fakeController) RefreshDevices(context.Context) ([]models.Device, error) {
	return f.Devices(), nil
}

func (f *fakeController) SelectDevices(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.SelectedDevices = append([]string{}, ids...)
	return nil
}

func (f *fakeController) ToggleDevice(_ context.Context, id string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.snap.SelectedDevices {
		if s == id {
			f.snap.SelectedDevices = append(f.snap.SelectedDevices[:i:i], f.snap.SelectedDevices[i+1:]...)
			return append([]string{}, f.snap.SelectedDevices...), nil
		}
	}
	for _, d := range f.devices {
		if d.ID == id {
			f.snap.SelectedDevices = append(f.snap.SelectedDevices, id)
			return append([]string{}, f.snap.SelectedDevices...), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", lighting.ErrUnknownDevice, id)
}

func (f *fakeController) setSnapshot(fn func(*trackstatus.Snapshot)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.snap)
}

func (f *fakeController) Actions() []scheduler.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scheduler.Action(nil), f.actions...)
}

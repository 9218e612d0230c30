// Package settings persists the small amount of local state the service
// needs across restarts: the broadcast delay, the selected devices and the
// lighting API token.
package settings

import (
	"context"
	"errors"
)

// Fixed keys under which state is persisted.
const (
	KeyBroadcastDelay  = "broadcast_delay"
	KeySelectedDevices = "selected_devices"
	KeyLIFXToken       = "lifx_token"
)

// ErrNotFound is returned by Store.Get when the key has never been set or has
// been cleared.
var ErrNotFound = errors.New("setting not found")

// Store is a string key/value store. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

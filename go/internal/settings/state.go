package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// State wraps a Store with typed accessors for each persisted value.
type State struct {
	store Store
}

// NewState creates typed accessors over store.
func NewState(store Store) *State {
	return &State{store: store}
}

// Store returns the underlying key/value store.
func (s *State) Store() Store {
	return s.store
}

// Delay returns the persisted broadcast delay, or def when none is stored.
func (s *State) Delay(ctx context.Context, def int) (int, error) {
	raw, err := s.store.Get(ctx, KeyBroadcastDelay)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("failed to read delay: %w", err)
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return def, fmt.Errorf("invalid persisted delay %q", raw)
	}
	return seconds, nil
}

func (s *State) SetDelay(ctx context.Context, seconds int) error {
	if err := s.store.Set(ctx, KeyBroadcastDelay, strconv.Itoa(seconds)); err != nil {
		return fmt.Errorf("failed to persist delay: %w", err)
	}
	return nil
}

func (s *State) ClearDelay(ctx context.Context) error {
	return s.store.Delete(ctx, KeyBroadcastDelay)
}

// SelectedDevices returns the persisted device selection in insertion order.
func (s *State) SelectedDevices(ctx context.Context) ([]string, error) {
	raw, err := s.store.Get(ctx, KeySelectedDevices)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read selected devices: %w", err)
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("failed to decode selected devices: %w", err)
	}
	return ids, nil
}

func (s *State) SetSelectedDevices(ctx context.Context, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode selected devices: %w", err)
	}
	if err := s.store.Set(ctx, KeySelectedDevices, string(raw)); err != nil {
		return fmt.Errorf("failed to persist selected devices: %w", err)
	}
	return nil
}

func (s *State) ClearSelectedDevices(ctx context.Context) error {
	return s.store.Delete(ctx, KeySelectedDevices)
}

// Token returns the persisted lighting API token, or "" when none is stored.
func (s *State) Token(ctx context.Context) (string, error) {
	token, err := s.store.Get(ctx, KeyLIFXToken)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return token, nil
}

func (s *State) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return s.ClearToken(ctx)
	}
	if err := s.store.Set(ctx, KeyLIFXToken, token); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}
	return nil
}

func (s *State) ClearToken(ctx context.Context) error {
	if err := s.store.Delete(ctx, KeyLIFXToken); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}

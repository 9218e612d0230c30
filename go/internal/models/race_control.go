package models

import (
	"fmt"
	"time"
)

// Race control categories the resolver cares about.
const (
	CategoryFlag      = "Flag"
	CategorySafetyCar = "SafetyCar"
	ScopeTrack        = "Track"
)

// RaceControlMessage is a single entry of the race-control feed.
type RaceControlMessage struct {
	SessionKey   int       `json:"session_key"`
	MeetingKey   int       `json:"meeting_key"`
	Date         time.Time `json:"date"`
	Category     string    `json:"category"`
	Flag         *string   `json:"flag"`
	Message      string    `json:"message"`
	Scope        *string   `json:"scope"`
	Sector       *int      `json:"sector"`
	DriverNumber *int      `json:"driver_number,omitempty"`
	LapNumber    *int      `json:"lap_number,omitempty"`
}

// RawFlag returns the raw flag text or "" when the message carries none.
func (m RaceControlMessage) RawFlag() string {
	if m.Flag == nil {
		return ""
	}
	return *m.Flag
}

// RawScope returns the scope text or "" when the message carries none.
func (m RaceControlMessage) RawScope() string {
	if m.Scope == nil {
		return ""
	}
	return *m.Scope
}

// DedupKey identifies a message across polls by (timestamp, flag, text).
func (m RaceControlMessage) DedupKey() string {
	flag := "null"
	if m.Flag != nil {
		flag = *m.Flag
	}
	return fmt.Sprintf("%s_%s_%s", m.Date.UTC().Format(time.RFC3339Nano), flag, m.Message)
}

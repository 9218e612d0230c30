package flag

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mcdev12/flaglights/go/internal/models"
)

var baseTime = time.Date(2025, 5, 25, 13, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func trackFlag(offset time.Duration, flag string) models.RaceControlMessage {
	return models.RaceControlMessage{
		Date:     baseTime.Add(offset),
		Category: models.CategoryFlag,
		Flag:     strPtr(flag),
		Scope:    strPtr(models.ScopeTrack),
		Message:  flag + " FLAG",
	}
}

func safetyCar(offset time.Duration, text string) models.RaceControlMessage {
	return models.RaceControlMessage{
		Date:     baseTime.Add(offset),
		Category: models.CategorySafetyCar,
		Message:  text,
	}
}

func TestResolveFlag_RawFlagMapping(t *testing.T) {
	tests := []struct {
		raw  string
		want models.Flag
	}{
		{"RED", models.FlagRed},
		{"YELLOW", models.FlagYellow},
		{"DOUBLE YELLOW", models.FlagYellow},
		{"CHEQUERED", models.FlagCheckered},
		{"CLEAR", models.FlagGreen},
		{"GREEN", models.FlagGreen},
		{"BLUE", models.FlagGreen},
		{"red", models.FlagRed},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveFlag([]models.RaceControlMessage{trackFlag(0, tt.raw)}))
		})
	}
}

func TestResolveFlag_EmptyIsGreen(t *testing.T) {
	assert.Equal(t, models.FlagGreen, ResolveFlag(nil))
	assert.Equal(t, models.FlagGreen, ResolveFlag([]models.RaceControlMessage{}))
}

func TestResolveFlag_IgnoresIrrelevantMessages(t *testing.T) {
	sectorYellow := trackFlag(time.Minute, "YELLOW")
	sectorYellow.Scope = strPtr("Sector")
	other := models.RaceControlMessage{
		Date:     baseTime.Add(2 * time.Minute),
		Category: "Other",
		Message:  "CAR 44 UNDER INVESTIGATION",
	}

	got := ResolveFlag([]models.RaceControlMessage{other, sectorYellow, trackFlag(0, "RED")})
	assert.Equal(t, models.FlagRed, got)

	assert.Equal(t, models.FlagGreen, ResolveFlag([]models.RaceControlMessage{other, sectorYellow}))
}

func TestResolveFlag_MostRecentWins(t *testing.T) {
	messages := []models.RaceControlMessage{
		trackFlag(0, "RED"),
		trackFlag(2*time.Minute, "GREEN"),
		trackFlag(time.Minute, "YELLOW"),
	}
	assert.Equal(t, models.FlagGreen, ResolveFlag(messages))
}

func TestResolveFlag_SafetyCarOverridesRawFlag(t *testing.T) {
	messages := []models.RaceControlMessage{
		trackFlag(0, "RED"),
		safetyCar(time.Second, "SAFETY CAR DEPLOYED"),
	}
	assert.Equal(t, models.FlagSafety, ResolveFlag(messages))
}

func TestResolveFlag_SafetyCarTextInFlagMessage(t *testing.T) {
	msg := trackFlag(0, "YELLOW")
	msg.Message = "VIRTUAL SAFETY CAR DEPLOYED"
	assert.Equal(t, models.FlagSafety, ResolveFlag([]models.RaceControlMessage{msg}))
}

func TestResolveFlag_OlderSafetyCarLoses(t *testing.T) {
	messages := []models.RaceControlMessage{
		safetyCar(0, "SAFETY CAR DEPLOYED"),
		trackFlag(time.Minute, "GREEN"),
	}
	assert.Equal(t, models.FlagGreen, ResolveFlag(messages))
}

func TestResolveFlag_Idempotent(t *testing.T) {
	messages := []models.RaceControlMessage{trackFlag(0, "YELLOW"), safetyCar(-time.Minute, "SAFETY CAR IN THIS LAP")}
	first := ResolveFlag(messages)
	assert.Equal(t, first, ResolveFlag(messages))
	assert.Equal(t, models.FlagYellow, first)
}

func TestDedupCache_EvictsOldest(t *testing.T) {
	c := newDedupCache(2)
	assert.True(t, c.add("a"))
	assert.True(t, c.add("b"))
	assert.False(t, c.add("a"))
	assert.True(t, c.add("c"))

	assert.False(t, c.add("c"))
	// "a" was evicted, so it counts as new again and pushes out "b"
	assert.True(t, c.add("a"))
	assert.True(t, c.add("b"))
	assert.Len(t, c.order, 2)
}

package flag

import (
	"sort"
	"strings"

	"github.com/mcdev12/flaglights/go/internal/models"
)

const (
	safetyCarText        = "SAFETY CAR"
	virtualSafetyCarText = "VIRTUAL SAFETY CAR"
)

// ResolveFlag maps a window of race control messages to the canonical flag.
// Only track-wide flag messages and safety car messages are considered; the
// most recent one wins. An empty or irrelevant window resolves to green.
func ResolveFlag(messages []models.RaceControlMessage) models.Flag {
	relevant := make([]models.RaceControlMessage, 0, len(messages))
	for _, m := range messages {
		if isRelevant(m) {
			relevant = append(relevant, m)
		}
	}
	if len(relevant) == 0 {
		return models.FlagGreen
	}

	sortByDateDesc(relevant)
	latest := relevant[0]

	if isSafetyCar(latest) {
		return models.FlagSafety
	}

	switch strings.ToUpper(strings.TrimSpace(latest.RawFlag())) {
	case "RED":
		return models.FlagRed
	case "YELLOW", "DOUBLE YELLOW":
		return models.FlagYellow
	case "CHEQUERED":
		return models.FlagCheckered
	default:
		// CLEAR, GREEN and anything unrecognised
		return models.FlagGreen
	}
}

func isRelevant(m models.RaceControlMessage) bool {
	if m.Category == models.CategoryFlag && m.RawScope() == models.ScopeTrack {
		return true
	}
	return isSafetyCar(m)
}

func isSafetyCar(m models.RaceControlMessage) bool {
	return m.Category == models.CategorySafetyCar ||
		strings.Contains(m.Message, safetyCarText) ||
		strings.Contains(m.Message, virtualSafetyCarText)
}

func sortByDateDesc(messages []models.RaceControlMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Date.After(messages[j].Date)
	})
}

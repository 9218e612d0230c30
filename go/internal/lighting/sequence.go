package lighting

import (
	"time"

	"github.com/mcdev12/flaglights/go/internal/models"
)

// StepKind identifies what a sequence step does.
type StepKind int

const (
	StepState StepKind = iota
	StepPulse
	StepPause
)

func (k StepKind) String() string {
	switch k {
	case StepState:
		return "state"
	case StepPulse:
		return "pulse"
	case StepPause:
		return "pause"
	}
	return "unknown"
}

// Step is one element of a flag sequence.
type Step struct {
	Kind  StepKind
	State models.LightState
	Pulse models.PulseEffect
	Pause time.Duration
}

var (
	colorGreen  = models.Color{Hue: 120, Saturation: 1, Kelvin: 3500}
	colorRed    = models.Color{Hue: 0, Saturation: 1, Kelvin: 3500}
	colorYellow = models.Color{Hue: 60, Saturation: 1, Kelvin: 3500}
	colorWhite  = models.Color{Hue: 0, Saturation: 0, Kelvin: 9000}
	colorDark   = models.Color{Hue: 0, Saturation: 0, Kelvin: 2500}
)

const (
	snapDuration = 100 * time.Millisecond
	fadeDuration = time.Second
	greenHold    = 5 * time.Second
	chequerHold  = 3 * time.Second
)

func stateStep(color models.Color, brightness float64, duration time.Duration) Step {
	return Step{Kind: StepState, State: models.LightState{
		Power:      models.PowerOn,
		Color:      color,
		Brightness: brightness,
		Duration:   duration,
	}}
}

func pauseStep(d time.Duration) Step {
	return Step{Kind: StepPause, Pause: d}
}

func alertPulse(color models.Color) Step {
	return Step{Kind: StepPulse, Pulse: models.PulseEffect{
		Color:          color,
		Brightness:     1,
		FromColor:      color,
		FromBrightness: 0.3,
		Period:         500 * time.Millisecond,
		Cycles:         6,
		PowerOn:        true,
	}}
}

// Sequence returns the lighting choreography for flag, or nil for an unknown
// flag.
func Sequence(flag models.Flag) []Step {
	switch flag {
	case models.FlagGreen:
		return []Step{
			stateStep(colorGreen, 1, snapDuration),
			pauseStep(greenHold),
			stateStep(colorGreen, 0.5, fadeDuration),
		}
	case models.FlagRed:
		return []Step{
			stateStep(colorRed, 1, snapDuration),
			alertPulse(colorRed),
			stateStep(colorRed, 1, snapDuration),
		}
	case models.FlagYellow:
		return []Step{
			stateStep(colorYellow, 1, snapDuration),
		}
	case models.FlagSafety:
		return []Step{
			stateStep(colorYellow, 1, snapDuration),
			alertPulse(colorYellow),
			stateStep(colorYellow, 1, snapDuration),
		}
	case models.FlagCheckered:
		return []Step{
			{Kind: StepPulse, Pulse: models.PulseEffect{
				Color:          colorWhite,
				Brightness:     1,
				FromColor:      colorDark,
				FromBrightness: 0,
				Period:         300 * time.Millisecond,
				Cycles:         10,
				PowerOn:        true,
			}},
			pauseStep(chequerHold),
			stateStep(colorGreen, 0.5, fadeDuration),
		}
	}
	return nil
}

package models

import (
	"fmt"
	"strconv"
	"time"
)

// Power values accepted by the lighting API.
const (
	PowerOn  = "on"
	PowerOff = "off"
)

// Color is an HSBK color without the brightness component.
type Color struct {
	Hue        float64 `json:"hue"`
	Saturation float64 `json:"saturation"`
	Kelvin     int     `json:"kelvin"`
}

// String renders the color in the LIFX color-string format.
func (c Color) String() string {
	return fmt.Sprintf("hue:%s saturation:%s kelvin:%d", formatFloat(c.Hue), formatFloat(c.Saturation), c.Kelvin)
}

// WithBrightness renders the color plus a brightness component.
func (c Color) WithBrightness(brightness float64) string {
	return fmt.Sprintf("%s brightness:%s", c.String(), formatFloat(brightness))
}

// LightState is a direct state command.
type LightState struct {
	Power      string        `json:"power"`
	Color      Color         `json:"color"`
	Brightness float64       `json:"brightness"`
	Duration   time.Duration `json:"duration"`
}

// PulseEffect alternates between FromColor/FromBrightness and
// Color/Brightness for Cycles periods.
type PulseEffect struct {
	Color          Color         `json:"color"`
	Brightness     float64       `json:"brightness"`
	FromColor      Color         `json:"from_color"`
	FromBrightness float64       `json:"from_brightness"`
	Period         time.Duration `json:"period"`
	Cycles         int           `json:"cycles"`
	PowerOn        bool          `json:"power_on"`
}

// DeviceGroup is the group or location a device belongs to.
type DeviceGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Device is a lighting device as reported by the device list endpoint.
type Device struct {
	ID         string      `json:"id"`
	UUID       string      `json:"uuid"`
	Label      string      `json:"label"`
	Connected  bool        `json:"connected"`
	Power      string      `json:"power"`
	Color      Color       `json:"color"`
	Brightness float64     `json:"brightness"`
	Group      DeviceGroup `json:"group"`
	Location   DeviceGroup `json:"location"`
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

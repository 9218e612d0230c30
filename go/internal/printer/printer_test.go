package printer

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/mcdev12/flaglights/go/internal/models"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	prevOut, prevNoColor := Out, color.NoColor
	buf := new(bytes.Buffer)
	Out = buf
	color.NoColor = true
	t.Cleanup(func() {
		Out = prevOut
		color.NoColor = prevNoColor
	})
	return buf
}

func TestSuccessAddsCheckmarkOnce(t *testing.T) {
	buf := capture(t)
	Success("saved\n")
	Success("✓ already marked\n")
	assert.Equal(t, "✓ saved\n✓ already marked\n", buf.String())
}

func TestField(t *testing.T) {
	buf := capture(t)
	Field("Delay", "5s")
	assert.Equal(t, "Delay:             5s\n", buf.String())
}

func TestFlag(t *testing.T) {
	capture(t)
	assert.Equal(t, "RED", Flag(models.FlagRed))
	assert.Equal(t, "NONE", Flag(models.FlagUnknown))
}

func TestErrorReturnsTitle(t *testing.T) {
	err := Error("cannot reach server", "", nil)
	assert.EqualError(t, err, "cannot reach server")
}

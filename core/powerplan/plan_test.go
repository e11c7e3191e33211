package powerplan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kilianp07/kioskpower/core/model"
)

func defaultConfig() Config {
	var c Config
	c.SetDefaults()
	return c
}

func TestBuildWeekdayPlan(t *testing.T) {
	got := Build(defaultConfig(), model.On("08:30", "22:30"), "http://kiosk.local")
	want := []Step{
		{"08:20", ActionPowerOn},
		{"08:30", "start_chrome_kiosk:http://kiosk.local"},
		{"13:30", ActionKillKiosk},
		{"13:32", ActionReboot},
		{"13:40", "start_chrome_kiosk:http://kiosk.local"},
		{"22:30", ActionKillKiosk},
		{"22:32", ActionPowerOff},
	}
	assert.Equal(t, want, got)
}

func TestBuildSkipsMiddayOutsideWindow(t *testing.T) {
	got := Build(defaultConfig(), model.On("14:00", "18:00"), "")
	assert.Len(t, got, 4)
	assert.Equal(t, Step{"13:50", ActionPowerOn}, got[0])
	assert.Equal(t, ActionStartKiosk, got[1].Action)
}

func TestBuildOffAndInvalid(t *testing.T) {
	assert.Empty(t, Build(defaultConfig(), model.Off(), ""))
	assert.Empty(t, Build(defaultConfig(), model.On("", "18:00"), ""))
	assert.NotNil(t, Build(defaultConfig(), model.Off(), ""))
}

func TestBuildClampsToDay(t *testing.T) {
	got := Build(defaultConfig(), model.On("00:05", "23:59"), "")
	assert.Equal(t, "00:00", got[0].At)
	assert.Equal(t, "23:59", got[len(got)-1].At)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, defaultConfig().Validate())
	assert.NoError(t, Config{Midday: "off"}.Validate())
	assert.Error(t, Config{Midday: "1:30"}.Validate())
}

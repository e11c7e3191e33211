// Package powerplan turns a resolved schedule day into the timed actions a
// terminal runs locally.
package powerplan

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kilianp07/kioskpower/core/model"
)

// Action names understood by the terminal agent.
const (
	ActionPowerOn    = "power_on"
	ActionStartKiosk = "start_chrome_kiosk"
	ActionKillKiosk  = "kill_chrome"
	ActionReboot     = "reboot"
	ActionPowerOff   = "power_off"
)

// Step is one timed action.
type Step struct {
	At     string `json:"at"`
	Action string `json:"action"`
}

// Config shapes the plan around the on/off times.
type Config struct {
	// PowerOnLead is how long before the on time the terminal boots.
	PowerOnLead time.Duration `koanf:"power_on_lead"`
	// PowerOffTail is how long after the off time the terminal shuts down.
	PowerOffTail time.Duration `koanf:"power_off_tail"`
	// Midday restarts the kiosk browser once a day when set, e.g. "13:30".
	Midday       string        `koanf:"midday"`
	RebootAfter  time.Duration `koanf:"reboot_after"`
	RestartAfter time.Duration `koanf:"restart_after"`
}

// SetDefaults applies the timings the terminals shipped with.
func (c *Config) SetDefaults() {
	if c.PowerOnLead == 0 {
		c.PowerOnLead = 10 * time.Minute
	}
	if c.PowerOffTail == 0 {
		c.PowerOffTail = 2 * time.Minute
	}
	if c.Midday == "" {
		c.Midday = "13:30"
	}
	if c.RebootAfter == 0 {
		c.RebootAfter = 2 * time.Minute
	}
	if c.RestartAfter == 0 {
		c.RestartAfter = 10 * time.Minute
	}
}

// Validate checks the midday time.
func (c Config) Validate() error {
	if c.Midday != "" && c.Midday != "off" && !model.ValidClock(c.Midday) {
		return fmt.Errorf("plan.midday %q is not HH:MM", c.Midday)
	}
	return nil
}

// Build returns the plan of a resolved day. A day that is not on, or whose
// times are unusable, has an empty plan. The midday restart is only added
// when it falls strictly inside the on window.
func Build(cfg Config, day model.Day, kioskURL string) []Step {
	if !day.IsOn() {
		return []Step{}
	}
	on, ok1 := minutes(day.OnTime)
	off, ok2 := minutes(day.OffTime)
	if !ok1 || !ok2 {
		return []Step{}
	}
	kiosk := ActionStartKiosk
	if kioskURL != "" {
		kiosk += ":" + kioskURL
	}

	steps := []Step{
		{At: clock(on - int(cfg.PowerOnLead/time.Minute)), Action: ActionPowerOn},
		{At: clock(on), Action: kiosk},
	}
	if mid, ok := minutes(cfg.Midday); ok && mid > on && mid < off {
		steps = append(steps,
			Step{At: clock(mid), Action: ActionKillKiosk},
			Step{At: clock(mid + int(cfg.RebootAfter/time.Minute)), Action: ActionReboot},
			Step{At: clock(mid + int(cfg.RestartAfter/time.Minute)), Action: kiosk},
		)
	}
	steps = append(steps,
		Step{At: clock(off), Action: ActionKillKiosk},
		Step{At: clock(off + int(cfg.PowerOffTail/time.Minute)), Action: ActionPowerOff},
	)
	return steps
}

func minutes(hhmm string) (int, bool) {
	if !model.ValidClock(hhmm) {
		return 0, false
	}
	h, _ := strconv.Atoi(hhmm[:2])
	m, _ := strconv.Atoi(hhmm[3:])
	return h*60 + m, true
}

// clock clamps to the same day.
func clock(m int) string {
	if m < 0 {
		m = 0
	}
	if m > 23*60+59 {
		m = 23*60 + 59
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

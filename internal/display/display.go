// Package display renders session snapshots to the LCD and to an in-memory
// frame served over HTTP.
package display

import (
	"errors"
	"fmt"

	"github.com/sweeney/dehydrator/internal/logic"
)

// Renderer draws snapshots.
type Renderer interface {
	Update(s logic.Snapshot) error
	Clear() error
}

// Lines formats a snapshot as the two text rows shown on the display.
// A blinking field that is currently hidden loses its label; a hidden time
// field loses its separator.
func Lines(s logic.Snapshot) (top, bottom string) {
	tl, hl := "T", "H"
	if !s.Visible.Temp {
		tl = " "
	}
	if !s.Visible.Hum {
		hl = " "
	}
	sep := ":"
	if !s.Visible.Time {
		sep = " "
	}
	top = fmt.Sprintf("%s%5.1fC  %s%3.0f%%", tl, s.Temperature, hl, s.Humidity)
	bottom = fmt.Sprintf("%-7s %2d%s%02dh", modeText(s), s.Remaining/60, sep, s.Remaining%60)
	return top, bottom
}

func modeText(s logic.Snapshot) string {
	if s.Selection != logic.SelectNone {
		return "SET " + s.Selection.String()
	}
	if s.Mode == logic.ModeRunning {
		return "DRYING"
	}
	return "IDLE"
}

// Multi fans every call out to several renderers. All renderers are called
// even when one fails; the errors are joined.
type Multi []Renderer

func (m Multi) Update(s logic.Snapshot) error {
	var errs []error
	for _, r := range m {
		if err := r.Update(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Clear() error {
	var errs []error
	for _, r := range m {
		if err := r.Clear(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

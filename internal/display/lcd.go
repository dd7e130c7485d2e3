package display

import (
	"fmt"
	"sync"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/hd44780i2c"

	"github.com/sweeney/dehydrator/internal/logic"
)

const (
	lcdWidth  = 16
	lcdHeight = 2
)

// LCD is a 16x2 HD44780 character display behind a PCF8574 I2C backpack.
// Rows are only rewritten when their text changes.
type LCD struct {
	mu   sync.Mutex
	dev  hd44780i2c.Device
	rows [lcdHeight]string
}

// NewLCD configures the display at addr (0 means the common 0x27).
func NewLCD(bus drivers.I2C, addr uint8) (*LCD, error) {
	dev := hd44780i2c.New(bus, addr)
	if err := dev.Configure(hd44780i2c.Config{Width: lcdWidth, Height: lcdHeight}); err != nil {
		return nil, fmt.Errorf("configure lcd: %w", err)
	}
	dev.BacklightOn(true)
	dev.ClearDisplay()
	return &LCD{dev: dev}, nil
}

func (l *LCD) Update(s logic.Snapshot) error {
	top, bottom := Lines(s)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.write(0, top)
	l.write(1, bottom)
	return nil
}

// Clear blanks the display and switches the backlight off.
func (l *LCD) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dev.ClearDisplay()
	l.dev.BacklightOn(false)
	l.rows = [lcdHeight]string{}
	return nil
}

func (l *LCD) write(row int, text string) {
	text = fmt.Sprintf("%-*.*s", lcdWidth, lcdWidth, text)
	if l.rows[row] == text {
		return
	}
	l.dev.SetCursor(0, uint8(row))
	l.dev.Print([]byte(text))
	l.rows[row] = text
}

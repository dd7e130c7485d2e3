package display

import (
	"bytes"
	"errors"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/dehydrator/internal/logic"
)

func snapshot() logic.Snapshot {
	return logic.Snapshot{
		Temperature: 58.3,
		Humidity:    31,
		Remaining:   119,
		Mode:        logic.ModeRunning,
		Selection:   logic.SelectNone,
		Visible:     logic.Visible{Temp: true, Hum: true, Time: true},
	}
}

func TestLines(t *testing.T) {
	top, bottom := Lines(snapshot())
	assert.Equal(t, "T 58.3C  H 31%", top)
	assert.Equal(t, "DRYING   1:59h", bottom)
	assert.LessOrEqual(t, len(top), lcdWidth)
	assert.LessOrEqual(t, len(bottom), lcdWidth)
}

func TestLinesHiddenFields(t *testing.T) {
	s := snapshot()
	s.Selection = logic.SelectTime
	s.Visible = logic.Visible{Temp: false, Hum: false, Time: false}
	s.Remaining = 5959

	top, bottom := Lines(s)
	assert.Equal(t, "  58.3C    31%", top)
	assert.Equal(t, "SET TIME 99 19h", bottom)
	assert.LessOrEqual(t, len(bottom), lcdWidth)
}

func TestLinesIdle(t *testing.T) {
	s := snapshot()
	s.Mode = logic.ModeIdle
	_, bottom := Lines(s)
	assert.Equal(t, "IDLE     1:59h", bottom)
}

// fakeBus counts I2C transactions.
type fakeBus struct {
	mu     sync.Mutex
	writes int
	data   []byte
}

func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes++
	b.data = append(b.data, w...)
	return nil
}

func (b *fakeBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}

func TestLCDSkipsUnchangedRows(t *testing.T) {
	bus := &fakeBus{}
	lcd, err := NewLCD(bus, 0)
	require.NoError(t, err)

	require.NoError(t, lcd.Update(snapshot()))
	after := bus.count()
	assert.Greater(t, after, 0)

	require.NoError(t, lcd.Update(snapshot()))
	assert.Equal(t, after, bus.count(), "unchanged snapshot rewrote the display")

	s := snapshot()
	s.Remaining = 118
	require.NoError(t, lcd.Update(s))
	assert.Greater(t, bus.count(), after)
}

func TestLCDClearForcesRedraw(t *testing.T) {
	bus := &fakeBus{}
	lcd, err := NewLCD(bus, 0x3f)
	require.NoError(t, err)
	require.NoError(t, lcd.Update(snapshot()))

	require.NoError(t, lcd.Clear())
	assert.Equal(t, [lcdHeight]string{}, lcd.rows)

	n := bus.count()
	require.NoError(t, lcd.Update(snapshot()))
	assert.Greater(t, bus.count(), n)
}

func TestFrameDrawsAndEncodes(t *testing.T) {
	f := NewFrame()
	assert.Zero(t, f.Lit())

	require.NoError(t, f.Update(snapshot()))
	assert.Greater(t, f.Lit(), 0)

	var buf bytes.Buffer
	require.NoError(t, f.WritePNG(&buf))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, FrameWidth, img.Bounds().Dx())
	assert.Equal(t, FrameHeight, img.Bounds().Dy())

	require.NoError(t, f.Clear())
	assert.Zero(t, f.Lit())
}

func TestFrameIgnoresOutOfBoundsPixels(t *testing.T) {
	f := NewFrame()
	assert.NotPanics(t, func() {
		f.SetPixel(-1, 0, colorFG)
		f.SetPixel(0, FrameHeight, colorFG)
		f.SetPixel(FrameWidth, 3, colorFG)
	})
	assert.Zero(t, f.Lit())

	x, y := f.Size()
	assert.Equal(t, int16(FrameWidth), x)
	assert.Equal(t, int16(FrameHeight), y)
}

func TestMultiFansOutAndJoinsErrors(t *testing.T) {
	a, b := NewFake(), NewFake()
	boom := errors.New("boom")
	a.Err = boom

	m := Multi{a, b}
	err := m.Update(snapshot())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, a.Updates(), 1)
	assert.Len(t, b.Updates(), 1)

	require.NoError(t, m.Clear())
	assert.Equal(t, 1, a.Clears())
	assert.Equal(t, 1, b.Clears())
}

func TestFakeLast(t *testing.T) {
	f := NewFake()
	_, err := f.Last()
	assert.Error(t, err)

	require.NoError(t, f.Update(snapshot()))
	s, err := f.Last()
	require.NoError(t, err)
	assert.Equal(t, 119, s.Remaining)
}

package display

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"github.com/sweeney/dehydrator/internal/logic"
)

const (
	FrameWidth  = 128
	FrameHeight = 64
)

var (
	colorBG = color.RGBA{A: 0xff}
	colorFG = color.RGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}
	colorHi = color.RGBA{R: 0xff, G: 0xdd, B: 0x66, A: 0xff}
)

// Frame is a monochrome-style framebuffer mirroring the physical display.
// It implements drivers.Displayer so tinyfont can draw into it, and can be
// encoded as PNG for the status page.
type Frame struct {
	mu   sync.Mutex
	img  *image.RGBA
	font tinyfont.Fonter
}

// NewFrame creates a blank frame.
func NewFrame() *Frame {
	f := &Frame{
		img:  image.NewRGBA(image.Rect(0, 0, FrameWidth, FrameHeight)),
		font: &proggy.TinySZ8pt7b,
	}
	f.fill(colorBG)
	return f
}

func (f *Frame) Size() (x, y int16) {
	return FrameWidth, FrameHeight
}

func (f *Frame) SetPixel(x, y int16, c color.RGBA) {
	if x < 0 || y < 0 || x >= FrameWidth || y >= FrameHeight {
		return
	}
	f.img.SetRGBA(int(x), int(y), c)
}

func (f *Frame) Display() error { return nil }

func (f *Frame) Update(s logic.Snapshot) error {
	top, bottom := Lines(s)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fill(colorBG)
	tinyfont.WriteLine(f, f.font, 2, 14, top, colorFG)
	tinyfont.WriteLine(f, f.font, 2, 32, bottom, colorFG)
	if s.Pending {
		tinyfont.WriteLine(f, f.font, 2, 56, "targets", colorHi)
	}
	return nil
}

func (f *Frame) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fill(colorBG)
	return nil
}

// WritePNG encodes the current frame.
func (f *Frame) WritePNG(w io.Writer) error {
	f.mu.Lock()
	img := image.NewRGBA(f.img.Rect)
	copy(img.Pix, f.img.Pix)
	f.mu.Unlock()
	return png.Encode(w, img)
}

// Lit counts the pixels that differ from the background.
func (f *Frame) Lit() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for y := 0; y < FrameHeight; y++ {
		for x := 0; x < FrameWidth; x++ {
			if f.img.RGBAAt(x, y) != colorBG {
				n++
			}
		}
	}
	return n
}

func (f *Frame) fill(c color.RGBA) {
	for i := 0; i < len(f.img.Pix); i += 4 {
		f.img.Pix[i] = c.R
		f.img.Pix[i+1] = c.G
		f.img.Pix[i+2] = c.B
		f.img.Pix[i+3] = c.A
	}
}

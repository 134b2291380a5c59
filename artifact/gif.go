package artifact

// This file contains the animated GIF encoder that turns periodic device
// screenshots into a thumbnail of the whole run.

import (
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"os"
	"sync"

	"github.com/disintegration/imaging"
)

const placeholderSize = 16

// GIFEncoder writes an animated GIF from frames appended over time. The
// file is created by Open and becomes readable after Close. AppendFrame is
// safe to call from a background goroutine while the owner closes the
// encoder; frames appended after Close are dropped.
type GIFEncoder struct {
	mu       sync.Mutex
	file     *os.File
	delay    int // hundredths of a second
	loop     int
	paletted []*image.Paletted
	delays   []int
}

// NewGIFEncoder creates a closed encoder with a one second frame interval
// that loops forever.
func NewGIFEncoder() *GIFEncoder {
	return &GIFEncoder{delay: 100}
}

// Open creates the GIF file at path and starts accepting frames.
func (g *GIFEncoder) Open(path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.file != nil {
		return fmt.Errorf("gif encoder already open")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create gif file: %w", err)
	}
	g.file = f
	g.paletted = nil
	g.delays = nil
	return nil
}

// SetFrameInterval sets the display time of every following frame.
func (g *GIFEncoder) SetFrameInterval(ms int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delay = ms / 10
}

// SetLoop sets how often the animation repeats; 0 repeats forever.
func (g *GIFEncoder) SetLoop(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loop = n
}

// IsOpen reports whether the encoder accepts frames.
func (g *GIFEncoder) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.file != nil
}

// FrameCount returns the number of frames appended since Open.
func (g *GIFEncoder) FrameCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.paletted)
}

// AppendFrame adds img as the next frame. It reports whether the frame was
// added, which is not the case once the encoder is closed.
func (g *GIFEncoder) AppendFrame(img image.Image) bool {
	// Quantise outside the lock, it is the expensive part
	frame := toPaletted(img)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.file == nil {
		return false
	}
	g.paletted = append(g.paletted, frame)
	g.delays = append(g.delays, g.delay)
	return true
}

// Close writes all frames and closes the file. Closing a closed encoder is
// a no-op.
func (g *GIFEncoder) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.file == nil {
		return nil
	}
	f := g.file
	g.file = nil

	// A run without screenshots still gets a valid, single frame GIF
	if len(g.paletted) == 0 {
		g.paletted = []*image.Paletted{placeholderFrame()}
		g.delays = []int{g.delay}
	}
	anim := &gif.GIF{
		Image:     g.paletted,
		Delay:     g.delays,
		LoopCount: g.loop,
		Config:    canvasConfig(g.paletted),
	}
	if err := gif.EncodeAll(f, anim); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode gif: %w", err)
	}
	g.paletted = nil
	g.delays = nil

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close gif file: %w", err)
	}
	return nil
}

// canvasConfig sizes the logical screen to fit every frame, screenshots
// taken after a rotation are larger in one dimension.
func canvasConfig(frames []*image.Paletted) image.Config {
	cfg := image.Config{ColorModel: color.Palette(palette.Plan9)}
	for _, f := range frames {
		bottomRight := f.Bounds().Max
		cfg.Width = max(cfg.Width, bottomRight.X)
		cfg.Height = max(cfg.Height, bottomRight.Y)
	}
	return cfg
}

func placeholderFrame() *image.Paletted {
	img := imaging.New(placeholderSize, placeholderSize, color.RGBA{64, 64, 64, 255})
	return toPaletted(img)
}

func toPaletted(img image.Image) *image.Paletted {
	if p, ok := img.(*image.Paletted); ok {
		return p
	}
	bounds := img.Bounds()
	p := image.NewPaletted(bounds, palette.Plan9)
	draw.FloydSteinberg.Draw(p, bounds, img, bounds.Min)
	return p
}

package extract

import (
	"image"
	"image/color"
	"image/draw"
)

// canvasBackground is the neutral fill shown behind pages narrower than the
// canvas.
var canvasBackground = color.RGBA{R: 0xEE, G: 0xEE, B: 0xEE, A: 0xFF}

// canvas composes page rasters by vertical stacking. Pages narrower than the
// canvas are horizontally centered. Appending a page wider than the canvas
// regrows it and shifts the existing block by half the width delta, which
// keeps previously centered rows centered. Only the running canvas and the
// page being appended are held in memory.
type canvas struct {
	img *image.RGBA
	y   int // next free row
}

// newCanvas allocates a background-filled canvas. Width and height are
// best-effort estimates; the canvas grows as needed and trims unused rows.
func newCanvas(width, height int) *canvas {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: canvasBackground}, image.Point{}, draw.Src)
	return &canvas{img: img}
}

// append stacks one page raster below the rows already composed.
func (c *canvas) append(page image.Image) {
	pw, ph := page.Bounds().Dx(), page.Bounds().Dy()
	if pw > c.width() || c.y+ph > c.height() {
		c.grow(maxInt(pw, c.width()), maxInt(c.y+ph, c.height()))
	}

	x := (c.width() - pw) / 2
	draw.Draw(c.img, image.Rect(x, c.y, x+pw, c.y+ph), page, page.Bounds().Min, draw.Src)
	c.y += ph
}

// grow reallocates the canvas and recenters the existing block.
func (c *canvas) grow(width, height int) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: canvasBackground}, image.Point{}, draw.Src)

	x := (width - c.width()) / 2
	old := c.img.Bounds()
	draw.Draw(img, image.Rect(x, 0, x+old.Dx(), c.y), c.img, old.Min, draw.Src)
	c.img = img
}

// image returns the composed result, trimmed to the rows actually used.
func (c *canvas) image() image.Image {
	if c.y == c.height() {
		return c.img
	}
	return c.img.SubImage(image.Rect(0, 0, c.width(), c.y))
}

func (c *canvas) width() int  { return c.img.Bounds().Dx() }
func (c *canvas) height() int { return c.img.Bounds().Dy() }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

package display

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"github.com/andresmejia3/proctor/internal/types"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	Green = color.RGBA{0, 255, 0, 255}
	Red   = color.RGBA{255, 0, 0, 255}
	White = color.RGBA{255, 255, 255, 255}
)

// PhoneBanner is shown on the frame that disqualifies a candidate for a prohibited object.
const PhoneBanner = "Disqualified! Phone detected"

const strokeWidth = 2

// Overlay is what gets drawn over a camera frame.
type Overlay struct {
	Faces   []types.FaceObservation
	Objects []types.ObjectDetection
	Banner  string
}

// Annotate decodes a JPEG, draws the overlay and re-encodes it.
func Annotate(frame []byte, ov Overlay) ([]byte, error) {
	src, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	img := image.NewRGBA(src.Bounds())
	draw.Draw(img, img.Bounds(), src, src.Bounds().Min, draw.Src)

	Draw(img, ov)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return out.Bytes(), nil
}

// Draw paints the overlay onto img in place.
func Draw(img *image.RGBA, ov Overlay) {
	for _, f := range ov.Faces {
		if f.Matched {
			strokeRect(img, f.Box, Green)
			drawText(img, f.Label, f.Box.Min.X+6, f.Box.Max.Y-6, White)
		} else {
			strokeRect(img, f.Box, Red)
		}
	}
	for _, o := range ov.Objects {
		strokeRect(img, o.Box, Red)
		drawText(img, fmt.Sprintf("%s %.2f", o.Label, o.Confidence), o.Box.Min.X+6, o.Box.Min.Y+16, Red)
	}
	if ov.Banner != "" {
		drawText(img, ov.Banner, 50, 50, Red)
	}
}

// fillRect writes c into every pixel of rect, clipped to the image.
func fillRect(img *image.RGBA, rect image.Rectangle, c color.RGBA) {
	// Clip rect to image bounds to prevent panics
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return
	}
	stride := img.Stride
	pix := img.Pix
	imgMinX, imgMinY := img.Rect.Min.X, img.Rect.Min.Y
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		rowStart := (y-imgMinY)*stride + (rect.Min.X-imgMinX)*4
		for x := 0; x < rect.Dx(); x++ {
			off := rowStart + x*4
			pix[off] = c.R
			pix[off+1] = c.G
			pix[off+2] = c.B
			pix[off+3] = c.A
		}
	}
}

// strokeRect outlines rect with a strokeWidth border drawn inside it.
func strokeRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	r = r.Canon()
	if r.Empty() {
		return
	}
	w := strokeWidth
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+w), c) // Top
	fillRect(img, image.Rect(r.Min.X, r.Max.Y-w, r.Max.X, r.Max.Y), c) // Bottom
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+w, r.Max.Y), c) // Left
	fillRect(img, image.Rect(r.Max.X-w, r.Min.Y, r.Max.X, r.Max.Y), c) // Right
}

func drawText(img *image.RGBA, s string, x, y int, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

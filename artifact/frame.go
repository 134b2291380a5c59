package artifact

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// DefaultFrameScale is the factor screenshots are scaled by before they are
// added to the run GIF.
const DefaultFrameScale = 0.3

// LoadFrame decodes the image file at path, honouring EXIF orientation.
func LoadFrame(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %s: %w", path, err)
	}
	return img, nil
}

// ScaleFrame scales img by factor, keeping its aspect ratio. Frames are
// never scaled below one pixel.
func ScaleFrame(img image.Image, factor float64) image.Image {
	bounds := img.Bounds()
	width := int(math.Round(float64(bounds.Dx()) * factor))
	if width < 1 {
		width = 1
	}
	height := int(math.Round(float64(bounds.Dy()) * factor))
	if height < 1 {
		height = 1
	}
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

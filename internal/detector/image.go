package detector

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// PreparedImage is a frame ready for upload together with the factor that
// maps coordinates on it back to the original frame.
type PreparedImage struct {
	Data          []byte
	Width, Height int     // original size
	Scale         float64 // original / uploaded, >= 1
}

// PrepareImage decodes an image and re-encodes it as JPEG, downscaling so
// neither side exceeds maxSize while keeping aspect ratio.
func PrepareImage(data []byte, maxSize int) (*PreparedImage, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	out := &PreparedImage{Width: width, Height: height, Scale: 1}

	// Check if resizing is needed.
	if maxSize <= 0 || (width <= maxSize && height <= maxSize) {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			return nil, fmt.Errorf("failed to encode image: %w", err)
		}
		out.Data = buf.Bytes()
		return out, nil
	}

	// Calculate new dimensions.
	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = int(float64(height) * float64(maxSize) / float64(width))
		out.Scale = float64(width) / float64(newWidth)
	} else {
		newHeight = maxSize
		newWidth = int(float64(width) * float64(maxSize) / float64(height))
		out.Scale = float64(height) / float64(newHeight)
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}
	out.Data = buf.Bytes()

	return out, nil
}

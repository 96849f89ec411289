package decode

import "image"

// applyOrientation applies an EXIF orientation transform (1-8) to img.
// Adapted directly from internal/rpc/utils.go's applyOrientation /
// rotate90CW / rotate180 / rotate270CW / flipHorizontal / flipVertical,
// generalized to operate on any image.Image rather than only JPEGs.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 1, 0:
		return img
	case 2:
		return flipHorizontal(img)
	case 3:
		return rotate180(img)
	case 4:
		return flipVertical(img)
	case 5:
		return rotate270CW(flipHorizontal(img))
	case 6:
		return rotate90CW(img)
	case 7:
		return rotate90CW(flipHorizontal(img))
	case 8:
		return rotate270CW(img)
	default:
		return img
	}
}

func rotate90CW(img image.Image) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	rotated := image.NewRGBA(image.Rect(0, 0, height, width))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			rotated.Set(height-1-y, x, img.At(x+bounds.Min.X, y+bounds.Min.Y))
		}
	}
	return rotated
}

func rotate180(img image.Image) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	rotated := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			rotated.Set(width-1-x, height-1-y, img.At(x+bounds.Min.X, y+bounds.Min.Y))
		}
	}
	return rotated
}

func rotate270CW(img image.Image) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	rotated := image.NewRGBA(image.Rect(0, 0, height, width))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			rotated.Set(y, width-1-x, img.At(x+bounds.Min.X, y+bounds.Min.Y))
		}
	}
	return rotated
}

func flipHorizontal(img image.Image) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	flipped := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			flipped.Set(width-1-x, y, img.At(x+bounds.Min.X, y+bounds.Min.Y))
		}
	}
	return flipped
}

func flipVertical(img image.Image) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	flipped := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			flipped.Set(x, height-1-y, img.At(x+bounds.Min.X, y+bounds.Min.Y))
		}
	}
	return flipped
}

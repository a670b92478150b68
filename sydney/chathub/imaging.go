package chathub

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
)

type imageFormat string

const (
	formatPNG  imageFormat = "png"
	formatJPEG imageFormat = "jpeg"
	formatGIF  imageFormat = "gif"
)

// detectFormat infers the format from the file extension and falls back to
// content sniffing when the extension is unknown.
func detectFormat(filename string, data []byte) (imageFormat, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return formatPNG, nil
	case ".jpg", ".jpeg":
		return formatJPEG, nil
	case ".gif":
		return formatGIF, nil
	}

	mt := mimetype.Detect(data)
	switch {
	case mt.Is("image/png"):
		return formatPNG, nil
	case mt.Is("image/jpeg"):
		return formatJPEG, nil
	case mt.Is("image/gif"):
		return formatGIF, nil
	}
	return "", fmt.Errorf("unsupported image type %s", mt.String())
}

// downscale shrinks both dimensions by target/len(data) and re-encodes in
// the original format.
func downscale(data []byte, format imageFormat, target int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if format == formatJPEG {
		src = orient(src, exifOrientation(data))
	}

	ratio := float64(target) / float64(len(data))
	b := src.Bounds()
	w := max(1, int(float64(b.Dx())*ratio))
	h := max(1, int(float64(b.Dy())*ratio))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	switch format {
	case formatPNG:
		err = png.Encode(&buf, dst)
	case formatJPEG:
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85})
	case formatGIF:
		err = gif.Encode(&buf, dst, nil)
	default:
		err = fmt.Errorf("unsupported image format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// exifOrientation returns the EXIF orientation tag, or 1 when absent.
func exifOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

// orient applies the rotations for orientations 3, 6 and 8. Mirrored
// orientations are rare from cameras and are left as is.
func orient(src image.Image, orientation int) image.Image {
	switch orientation {
	case 3:
		return rotate(src, 180)
	case 6:
		return rotate(src, 90)
	case 8:
		return rotate(src, 270)
	default:
		return src
	}
}

// rotate turns src clockwise by a multiple of 90 degrees.
func rotate(src image.Image, degrees int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.RGBA
	if degrees == 180 {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := src.At(b.Min.X+x, b.Min.Y+y)
			switch degrees {
			case 90:
				dst.Set(h-1-y, x, c)
			case 180:
				dst.Set(w-1-x, h-1-y, c)
			case 270:
				dst.Set(y, w-1-x, c)
			}
		}
	}
	return dst
}

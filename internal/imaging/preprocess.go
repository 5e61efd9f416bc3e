package imaging

import (
	"image"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Per-channel normalization statistics.
var (
	ClipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	ClipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}

	// BLIP's image processor uses the CLIP statistics.
	BlipMean = ClipMean
	BlipStd  = ClipStd
)

// Preprocess center-crops the largest square from img, resizes it to
// size x size (bicubic) and returns a normalized CHW float32 tensor of length
// 3*size*size. Intermediate buffers never exceed the source square or the output.
func Preprocess(img *Image, size int, mean, std [3]float32) []float32 {
	square := CenterCrop(img.RGBA, min(img.Width, img.Height))
	resized := resize.Resize(uint(size), uint(size), square, resize.Bicubic)
	return toCHW(toRGBA(resized), mean, std)
}

// PreprocessSquare resizes directly to size x size without preserving aspect ratio.
func PreprocessSquare(img *Image, size int, mean, std [3]float32) []float32 {
	resized := resize.Resize(uint(size), uint(size), img.RGBA, resize.Bicubic)
	return toCHW(toRGBA(resized), mean, std)
}

// CenterCrop returns the centered size x size region of src. Regions outside
// src (when src is smaller than size) are left black.
func CenterCrop(src image.Image, size int) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	offset := image.Pt(b.Min.X+(b.Dx()-size)/2, b.Min.Y+(b.Dy()-size)/2)
	draw.Draw(dst, dst.Bounds(), src, offset, draw.Src)
	return dst
}

// toCHW scales pixels to [0,1], applies (x-mean)/std per channel and lays the
// result out channel-first. Alpha is dropped.
func toCHW(img *image.RGBA, mean, std [3]float32) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	out := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			p := row[x*4:]
			idx := y*w + x
			for c := 0; c < 3; c++ {
				out[c*plane+idx] = (float32(p[c])/255.0 - mean[c]) / std[c]
			}
		}
	}
	return out
}

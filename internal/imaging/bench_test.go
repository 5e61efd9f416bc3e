package imaging

import (
	"image/color"
	"testing"
)

func BenchmarkPreprocess_CLIP(b *testing.B) {
	img := FromImage(solid(640, 480, color.RGBA{R: 30, G: 60, B: 90, A: 255}))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Preprocess(img, 224, ClipMean, ClipStd)
	}
}

func BenchmarkPreprocessSquare_Caption(b *testing.B) {
	img := FromImage(solid(640, 480, color.RGBA{R: 30, G: 60, B: 90, A: 255}))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = PreprocessSquare(img, 384, BlipMean, BlipStd)
	}
}

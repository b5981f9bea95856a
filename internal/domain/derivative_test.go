package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerivativeFilename(t *testing.T) {
	tests := []struct {
		name   string
		source string
		spec   DerivativeSpec
		want   string
	}{
		{
			name:   "image to video",
			source: "tree.png",
			spec:   DerivativeSpec{Type: DerivativeImageToVideo},
			want:   "tree_animated.mp4",
		},
		{
			name:   "video to still",
			source: "promo.mp4",
			spec:   DerivativeSpec{Type: DerivativeVideoToStill},
			want:   "promo_still.jpg",
		},
		{
			name:   "resize keeps extension",
			source: "banner.jpg",
			spec:   DerivativeSpec{Type: DerivativeResize, TargetWidth: 300, TargetHeight: 250},
			want:   "banner_300x250.jpg",
		},
		{
			name:   "resize without dimensions",
			source: "banner.jpg",
			spec:   DerivativeSpec{Type: DerivativeResize},
			want:   "banner_derivative.jpg",
		},
		{
			name:   "unknown transform",
			source: "clip.mov",
			spec:   DerivativeSpec{Type: "style_transfer"},
			want:   "clip_derivative.mov",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DerivativeFilename(tt.source, tt.spec))
		})
	}
}

func TestDerivativeFileType(t *testing.T) {
	assert.Equal(t, FileTypeVideo, DerivativeSpec{Type: DerivativeImageToVideo}.DerivativeFileType(FileTypeImage))
	assert.Equal(t, FileTypeImage, DerivativeSpec{Type: DerivativeVideoToStill}.DerivativeFileType(FileTypeVideo))
	assert.Equal(t, FileTypeImage, DerivativeSpec{Type: DerivativeResize}.DerivativeFileType(FileTypeImage))
	assert.Equal(t, FileTypeVideo, DerivativeSpec{Type: DerivativeResize}.DerivativeFileType(FileTypeVideo))
}

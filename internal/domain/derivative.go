package domain

import (
	"fmt"
	"path"
	"strings"
)

// Derivative transform types. A derivative is a first-class Asset produced
// by an AI transform of a source asset.
const (
	DerivativeImageToVideo = "image_to_video"
	DerivativeVideoToStill = "video_to_still"
	DerivativeResize       = "resize"
)

// DerivativeSpec describes the transform that produced (or will produce) a
// derivative asset.
type DerivativeSpec struct {
	Type         string `json:"type"`
	AIModel      string `json:"aiModel,omitempty"`
	TargetWidth  int    `json:"targetWidth,omitempty"`
	TargetHeight int    `json:"targetHeight,omitempty"`
}

// DerivativeFileType returns the file type of the asset the transform yields.
func (s DerivativeSpec) DerivativeFileType(source FileType) FileType {
	switch s.Type {
	case DerivativeImageToVideo:
		return FileTypeVideo
	case DerivativeVideoToStill:
		return FileTypeImage
	}
	return source
}

// DerivativeFilename derives the new asset's filename from the source
// filename plus a transform-specific suffix: "_animated.mp4" for animation,
// "_still.jpg" for a still frame, "_<W>x<H>" (keeping the extension) for a
// resize to target dimensions.
func DerivativeFilename(sourceFilename string, spec DerivativeSpec) string {
	ext := path.Ext(sourceFilename)
	stem := strings.TrimSuffix(sourceFilename, ext)

	switch spec.Type {
	case DerivativeImageToVideo:
		return stem + "_animated.mp4"
	case DerivativeVideoToStill:
		return stem + "_still.jpg"
	case DerivativeResize:
		if spec.TargetWidth > 0 && spec.TargetHeight > 0 {
			return fmt.Sprintf("%s_%dx%d%s", stem, spec.TargetWidth, spec.TargetHeight, ext)
		}
	}
	return stem + "_derivative" + ext
}

package domain

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // JPEG形式のサポート
	_ "image/png"  // PNG形式のサポート
)

// MaxImageSize アップロード画像の上限（10MB）
const MaxImageSize = 10 * 1024 * 1024

// ErrInvalidImage 画像データが不正
var ErrInvalidImage = errors.New("invalid image")

// ValidateImageData 画像データを検証し、形式名を返す
func ValidateImageData(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: image data is empty", ErrInvalidImage)
	}

	if len(data) > MaxImageSize {
		return "", fmt.Errorf("%w: image size exceeds 10MB", ErrInvalidImage)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: invalid image format: %v", ErrInvalidImage, err)
	}

	allowedFormats := map[string]bool{"png": true, "jpeg": true}
	if !allowedFormats[format] {
		return "", fmt.Errorf("%w: unsupported format: %s", ErrInvalidImage, format)
	}

	return format, nil
}

// MediaType 形式名からMIMEタイプを返す
func MediaType(format string) string {
	if format == "jpeg" {
		return "image/jpeg"
	}
	return "image/png"
}

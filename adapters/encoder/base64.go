package encoder

import (
	"encoding/base64"

	apperrors "github.com/Skryldev/camera-pipeline/errors"
)

// EncodeBase64 renders data in the standard alphabet without line wrapping.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 is the inverse of EncodeBase64.
func DecodeBase64(text string) ([]byte, error) {
	out, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryEncoding, "base64.decode", err)
	}
	return out, nil
}

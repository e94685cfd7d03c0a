package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	return defaultConfig.NewEncoder(w).Encode(v)
}

func Decode(r io.Reader, v any) error {
	return defaultConfig.NewDecoder(r).Decode(v)
}

// MarshalColumn encodes v for storage in a text column. A nil slice or map is
// stored as "[]" so readers never see SQL NULL for list columns.
func MarshalColumn(v any) (string, error) {
	data, err := defaultConfig.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return "[]", nil
	}
	return string(data), nil
}

// UnmarshalColumn decodes a text column written by MarshalColumn. Empty input
// leaves v untouched.
func UnmarshalColumn(column string, v any) error {
	if column == "" {
		return nil
	}
	return defaultConfig.UnmarshalFromString(column, v)
}

// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

const LEVEL_WELL = 11
const LEVEL_FAST = 1

func CompressLevel(input []byte, level int) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, len(input)/2+64))
	writer := brotli.NewWriterLevel(buf, level)
	if _, err := writer.Write(input); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func CompressWell(input []byte) ([]byte, error) {
	return CompressLevel(input, LEVEL_WELL)
}

// Decompress fails if the decompressed data would exceed maxSize bytes.
func Decompress(input []byte, maxSize int) ([]byte, error) {
	reader := io.LimitReader(brotli.NewReader(bytes.NewReader(input)), int64(maxSize)+1)
	res, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed decompression: %w", err)
	}
	if len(res) > maxSize {
		return nil, fmt.Errorf("result too large: more than %d bytes", maxSize)
	}
	return res, nil
}

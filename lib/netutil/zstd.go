// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// EncodingZstd is the Content-Encoding and Accept-Encoding token for
// zstd bodies.
const EncodingZstd = "zstd"

// zstdEncoder and zstdDecoder are shared; both are safe for concurrent
// use through EncodeAll and DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("netutil: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(MaxResponseSize)))
	if err != nil {
		panic("netutil: zstd decoder initialization failed: " + err.Error())
	}
}

// AcceptsZstd reports whether a request's Accept-Encoding lists zstd.
func AcceptsZstd(header http.Header) bool {
	for _, value := range header.Values("Accept-Encoding") {
		for _, token := range strings.Split(value, ",") {
			name, _, _ := strings.Cut(strings.TrimSpace(token), ";")
			if strings.EqualFold(name, EncodingZstd) {
				return true
			}
		}
	}
	return false
}

// CompressZstd compresses data at the default level.
func CompressZstd(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

// ResponseBody returns a reader over the decoded body of response,
// decompressing a zstd Content-Encoding. Other encodings are passed
// through unchanged.
func ResponseBody(response *http.Response) (io.Reader, error) {
	if !strings.EqualFold(response.Header.Get("Content-Encoding"), EncodingZstd) {
		return response.Body, nil
	}
	compressed, err := io.ReadAll(io.LimitReader(response.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	decoded, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return bytes.NewReader(decoded), nil
}

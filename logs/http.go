// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bureau-foundation/taskctl/lib/netutil"
)

// fileChunk mirrors switchboard.FileChunk. Defined locally so the
// client does not depend on the server package.
type fileChunk struct {
	Offset   uint64 `json:"offset"`
	Data     []byte `json:"data"`
	Size     uint64 `json:"size"`
	Complete bool   `json:"complete"`
}

// HTTPSource reads one of a task's files from the switchboard API:
//
//	GET {BaseURL}/v1/tasks/{TaskID}/files/{File}?offset=N&length=M
//
// Responses are requested zstd-compressed.
type HTTPSource struct {
	Client  *http.Client
	BaseURL string
	TaskID  string
	File    string
}

// Read implements Source.
func (s *HTTPSource) Read(ctx context.Context, cursor Cursor, limit int) (Chunk, error) {
	chunk, err := s.get(ctx, strconv.FormatUint(cursor.Offset(), 10), limit)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{
		Data:     chunk.Data,
		Next:     CursorAt(chunk.Offset + uint64(len(chunk.Data))),
		Complete: chunk.Complete,
	}, nil
}

// End implements Source.
func (s *HTTPSource) End(ctx context.Context) (Cursor, error) {
	chunk, err := s.get(ctx, "-1", 0)
	if err != nil {
		return Cursor{}, err
	}
	return CursorAt(chunk.Size), nil
}

func (s *HTTPSource) get(ctx context.Context, offset string, limit int) (fileChunk, error) {
	query := url.Values{"offset": {offset}}
	if limit > 0 {
		query.Set("length", strconv.Itoa(limit))
	}
	endpoint := fmt.Sprintf("%s/v1/tasks/%s/files/%s?%s",
		strings.TrimSuffix(s.BaseURL, "/"), url.PathEscape(s.TaskID), url.PathEscape(s.File), query.Encode())

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fileChunk{}, fmt.Errorf("creating request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Accept-Encoding", netutil.EncodingZstd)

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	response, err := client.Do(request)
	if err != nil {
		return fileChunk{}, fmt.Errorf("reading %s of task %s: %w", s.File, s.TaskID, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fileChunk{}, fmt.Errorf("reading %s of task %s: HTTP %d: %s",
			s.File, s.TaskID, response.StatusCode, strings.TrimSpace(netutil.ErrorBody(response.Body)))
	}
	body, err := netutil.ResponseBody(response)
	if err != nil {
		return fileChunk{}, err
	}
	var chunk fileChunk
	if err := netutil.DecodeResponse(body, &chunk); err != nil {
		return fileChunk{}, fmt.Errorf("decoding file chunk: %w", err)
	}
	return chunk, nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bureau-foundation/taskctl/lib/netutil"
)

const (
	// DefaultReadLength is the file read size when length is omitted.
	DefaultReadLength = 64 * 1024

	// MaxReadLength caps a single file read.
	MaxReadLength = 1024 * 1024

	// compressThreshold is the smallest body worth compressing.
	compressThreshold = 1024
)

// FileChunk is the response to a file read.
type FileChunk struct {
	// Offset is where Data starts. It is later than the requested
	// offset when the requested bytes are no longer retained.
	Offset uint64 `json:"offset"`

	// Data holds the bytes read (base64 in JSON).
	Data []byte `json:"data"`

	// Size is the total number of bytes the stream has produced.
	Size uint64 `json:"size"`

	// Complete is true when the task has exited and Data reaches Size:
	// nothing more will ever be readable.
	Complete bool `json:"complete"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns the HTTP API:
//
//	GET /v1/tasks                          list tasks
//	GET /v1/tasks/{id}                     one task, by exact ID
//	GET /v1/tasks/{id}/files/{file}        read stdout or stderr
//	GET /v1/tasks/{id}/browse?path=        list a sandbox directory
//	GET /v1/tasks/{id}/download?path=      fetch a sandbox file
//
// File reads take offset (default 0; -1 reads nothing and reports the
// current size) and length (default 64 KiB, at most 1 MiB). A read never
// waits for output. Responses are zstd-compressed when the client
// accepts it and the body is larger than 1 KiB.
//
// Sandbox paths are relative to the task's working directory and cannot
// leave it. A missing path is 404; a download of anything but a regular
// file is 400.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/tasks", s.handleListTasks)
	mux.HandleFunc("GET /v1/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("GET /v1/tasks/{id}/files/{file}", s.handleReadFile)
	mux.HandleFunc("GET /v1/tasks/{id}/browse", s.handleBrowse)
	mux.HandleFunc("GET /v1/tasks/{id}/download", s.handleDownload)
	return mux
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := s.registry.List()
	infos := make([]TaskInfo, len(tasks))
	for index, task := range tasks {
		infos[index] = task.Info()
	}
	s.writeJSON(w, r, http.StatusOK, infos)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, r, http.StatusNotFound, fmt.Sprintf("task %q not found", r.PathValue("id")))
		return
	}
	s.writeJSON(w, r, http.StatusOK, task.Info())
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	task, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, r, http.StatusNotFound, fmt.Sprintf("task %q not found", r.PathValue("id")))
		return
	}
	stream, err := task.Stream(r.PathValue("file"))
	if err != nil {
		s.writeError(w, r, http.StatusNotFound, err.Error())
		return
	}

	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < -1 {
		s.writeError(w, r, http.StatusBadRequest, "offset must be -1 or a non-negative integer")
		return
	}
	length, err := queryInt(r, "length", DefaultReadLength)
	if err != nil || length <= 0 {
		s.writeError(w, r, http.StatusBadRequest, "length must be a positive integer")
		return
	}
	length = min(length, MaxReadLength)

	// Check for exit before reading so a chunk marked complete really
	// holds the final bytes.
	exited := !task.Running()

	var chunk FileChunk
	if offset == -1 {
		chunk.Size = stream.Size()
		chunk.Offset = chunk.Size
	} else {
		chunk.Data, chunk.Offset = stream.ReadRange(uint64(offset), int(length))
		chunk.Size = stream.Size()
	}
	chunk.Complete = exited && chunk.Offset+uint64(len(chunk.Data)) >= chunk.Size
	s.writeJSON(w, r, http.StatusOK, chunk)
}

func queryInt(r *http.Request, name string, fallback int64) (int64, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseInt(value, 10, 64)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeJSON(w, r, status, errorResponse{Error: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, value any) {
	body, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("encoding response", "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Add("Vary", "Accept-Encoding")
	if len(body) > compressThreshold && netutil.AcceptsZstd(r.Header) {
		body = netutil.CompressZstd(body)
		w.Header().Set("Content-Encoding", netutil.EncodingZstd)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	w.Write(body)
}

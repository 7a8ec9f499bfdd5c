// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// FileInfo describes one file in a task's sandbox.
type FileInfo struct {
	// Path is slash-separated and relative to the sandbox.
	Path string `json:"path"`

	// Mode is in ls form, such as "drwxr-xr-x".
	Mode  string    `json:"mode"`
	Size  int64     `json:"size"`
	MTime time.Time `json:"mtime"`
	NLink uint64    `json:"nlink"`
	UID   string    `json:"uid"`
	GID   string    `json:"gid"`
}

// IsDir reports whether the entry is a directory.
func (f FileInfo) IsDir() bool {
	return strings.HasPrefix(f.Mode, "d")
}

// SandboxPath cleans a client-supplied path into one relative to the
// sandbox root. Leading slashes and ".." elements cannot climb above
// the root; "", "/" and "." all name the root itself.
func SandboxPath(name string) string {
	cleaned := strings.TrimPrefix(path.Clean("/"+name), "/")
	if cleaned == "" {
		return "."
	}
	return cleaned
}

func newFileInfo(name string, info fs.FileInfo) FileInfo {
	file := FileInfo{
		Path:  name,
		Mode:  info.Mode().String(),
		Size:  info.Size(),
		MTime: info.ModTime(),
		NLink: 1,
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		file.NLink = uint64(stat.Nlink)
		file.UID = strconv.FormatUint(uint64(stat.Uid), 10)
		file.GID = strconv.FormatUint(uint64(stat.Gid), 10)
	}
	return file
}

// openSandbox opens the task's sandbox and the file at name inside it.
// Symlinks leading out of the sandbox fail to open.
func openSandbox(task *Task, name string) (*os.File, fs.FileInfo, error) {
	root, err := os.OpenRoot(task.Sandbox)
	if err != nil {
		return nil, nil, err
	}
	defer root.Close()

	file, err := root.Open(name)
	if err != nil {
		return nil, nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	return file, info, nil
}

// Browse lists the sandbox directory at name, sorted by path. A
// regular file lists as itself.
func Browse(task *Task, name string) ([]FileInfo, error) {
	name = SandboxPath(name)
	file, info, err := openSandbox(task, name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if !info.IsDir() {
		return []FileInfo{newFileInfo(name, info)}, nil
	}
	entries, err := file.ReadDir(-1)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		entryInfo, err := entry.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		files = append(files, newFileInfo(path.Join(name, entry.Name()), entryInfo))
	}
	slices.SortFunc(files, func(a, b FileInfo) int { return strings.Compare(a.Path, b.Path) })
	return files, nil
}

// sandboxStatus maps a sandbox access error to an HTTP status.
func sandboxStatus(err error) int {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, fs.ErrPermission):
		return http.StatusForbidden
	}
	return http.StatusBadRequest
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	task, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, r, http.StatusNotFound, fmt.Sprintf("task %q not found", r.PathValue("id")))
		return
	}
	files, err := Browse(task, r.URL.Query().Get("path"))
	if err != nil {
		s.writeError(w, r, sandboxStatus(err), err.Error())
		return
	}
	s.writeJSON(w, r, http.StatusOK, files)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	task, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, r, http.StatusNotFound, fmt.Sprintf("task %q not found", r.PathValue("id")))
		return
	}
	name := SandboxPath(r.URL.Query().Get("path"))
	file, info, err := openSandbox(task, name)
	if err != nil {
		s.writeError(w, r, sandboxStatus(err), err.Error())
		return
	}
	defer file.Close()
	if !info.Mode().IsRegular() {
		s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("%s is not a regular file", name))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, path.Base(name), info.ModTime(), file)
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

// newSandboxTask launches an idle task in a fresh directory holding
// out.txt, logs/a.txt and logs/b.log.
func newSandboxTask(t *testing.T, registry *Registry) *Task {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "out.txt"), "result\n")
	writeFile(t, filepath.Join(dir, "logs", "a.txt"), "alpha\n")
	writeFile(t, filepath.Join(dir, "logs", "b.log"), "bravo\n")
	return launch(t, registry, TaskSpec{Name: "worker", Command: []string{"sleep", "60"}, Dir: dir})
}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestSandboxPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		want string
	}{
		{"", "."},
		{".", "."},
		{"/", "."},
		{"logs", "logs"},
		{"/logs/", "logs"},
		{"logs/../out.txt", "out.txt"},
		{"../../etc/passwd", "etc/passwd"},
	}
	for _, test := range tests {
		if got := SandboxPath(test.name); got != test.want {
			t.Errorf("SandboxPath(%q) = %q, want %q", test.name, got, test.want)
		}
	}
}

func TestLaunchRecordsSandbox(t *testing.T) {
	t.Parallel()
	registry := newTestRegistry(t)
	task := newSandboxTask(t, registry)
	if !filepath.IsAbs(task.Sandbox) {
		t.Errorf("Sandbox = %q, want an absolute path", task.Sandbox)
	}
	if info := task.Info(); info.Sandbox != task.Sandbox {
		t.Errorf("Info().Sandbox = %q, want %q", info.Sandbox, task.Sandbox)
	}

	workingDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	inherited := launch(t, registry, TaskSpec{Name: "here", Command: []string{"sleep", "60"}})
	if inherited.Sandbox != workingDir {
		t.Errorf("Sandbox without Dir = %q, want %q", inherited.Sandbox, workingDir)
	}
}

func TestHTTPBrowse(t *testing.T) {
	t.Parallel()
	registry, httpServer := newTestHTTP(t)
	task := newSandboxTask(t, registry)

	var root []FileInfo
	response := getJSON(t, httpServer.URL+"/v1/tasks/"+task.ID+"/browse", false, &root)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", response.StatusCode)
	}
	if len(root) != 2 || root[0].Path != "logs" || root[1].Path != "out.txt" {
		t.Fatalf("root listing = %+v, want [logs out.txt]", root)
	}
	if !root[0].IsDir() || root[1].IsDir() {
		t.Errorf("IsDir = %t, %t; want true, false", root[0].IsDir(), root[1].IsDir())
	}
	if root[1].Size != int64(len("result\n")) || root[1].Mode != "-rw-r--r--" || root[1].NLink != 1 || root[1].UID == "" {
		t.Errorf("out.txt = %+v", root[1])
	}

	var logs []FileInfo
	getJSON(t, httpServer.URL+"/v1/tasks/"+task.ID+"/browse?path=/logs/", false, &logs)
	if len(logs) != 2 || logs[0].Path != "logs/a.txt" || logs[1].Path != "logs/b.log" {
		t.Errorf("logs listing = %+v, want [logs/a.txt logs/b.log]", logs)
	}

	var single []FileInfo
	getJSON(t, httpServer.URL+"/v1/tasks/"+task.ID+"/browse?path=out.txt", false, &single)
	if len(single) != 1 || single[0].Path != "out.txt" {
		t.Errorf("file listing = %+v, want [out.txt]", single)
	}
}

func TestHTTPDownload(t *testing.T) {
	t.Parallel()
	registry, httpServer := newTestHTTP(t)
	task := newSandboxTask(t, registry)

	response, err := http.Get(httpServer.URL + "/v1/tasks/" + task.ID + "/download?path=logs/a.txt")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if response.StatusCode != http.StatusOK || string(body) != "alpha\n" {
		t.Errorf("download = %d %q, want 200 %q", response.StatusCode, body, "alpha\n")
	}
}

func TestHTTPSandboxErrors(t *testing.T) {
	t.Parallel()
	registry, httpServer := newTestHTTP(t)
	task := newSandboxTask(t, registry)
	if err := os.Symlink("/etc", filepath.Join(task.Sandbox, "escape")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/v1/tasks/missing/browse", http.StatusNotFound},
		{"/v1/tasks/missing/download?path=out.txt", http.StatusNotFound},
		{"/v1/tasks/" + task.ID + "/browse?path=nothing", http.StatusNotFound},
		{"/v1/tasks/" + task.ID + "/download?path=nothing", http.StatusNotFound},
		{"/v1/tasks/" + task.ID + "/download?path=logs", http.StatusBadRequest},
		{"/v1/tasks/" + task.ID + "/download", http.StatusBadRequest},
		{"/v1/tasks/" + task.ID + "/browse?path=escape", http.StatusBadRequest},
		{"/v1/tasks/" + task.ID + "/download?path=escape/passwd", http.StatusBadRequest},
	}
	for _, test := range tests {
		var body errorResponse
		response := getJSON(t, httpServer.URL+test.path, false, &body)
		if response.StatusCode != test.wantStatus {
			t.Errorf("%s: status = %d, want %d", test.path, response.StatusCode, test.wantStatus)
		}
		if body.Error == "" {
			t.Errorf("%s: empty error message", test.path)
		}
	}
}

func TestClientBrowseAndDownload(t *testing.T) {
	t.Parallel()
	registry, httpServer := newTestHTTP(t)
	task := newSandboxTask(t, registry)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	client := NewClient(httpServer.URL, nil)

	files, err := client.Browse(ctx, task.ID, "logs")
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	if len(files) != 2 || files[0].Path != "logs/a.txt" {
		t.Errorf("Browse(logs) = %+v", files)
	}
	if _, err := client.Browse(ctx, task.ID, "nothing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Browse(nothing) error = %v, want ErrNotFound", err)
	}

	body, err := client.Download(ctx, task.ID, "out.txt")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, err := io.ReadAll(body)
	body.Close()
	if err != nil || string(data) != "result\n" {
		t.Errorf("Download(out.txt) = %q, %v; want %q", data, err, "result\n")
	}
	if _, err := client.Download(ctx, task.ID, "logs"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Download(logs) error = %v, want a bad request error", err)
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bureau-foundation/taskctl/lib/clock"
	"github.com/bureau-foundation/taskctl/lib/netutil"
)

func newTestHTTP(t *testing.T) (*Registry, *httptest.Server) {
	t.Helper()
	registry := newTestRegistry(t)
	server := NewServer(registry, clock.Real(), discardLogger())
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)
	return registry, httpServer
}

func getJSON(t *testing.T, url string, acceptZstd bool, value any) *http.Response {
	t.Helper()
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if acceptZstd {
		request.Header.Set("Accept-Encoding", "zstd")
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer response.Body.Close()
	body, err := netutil.ResponseBody(response)
	if err != nil {
		t.Fatalf("ResponseBody: %v", err)
	}
	if err := json.NewDecoder(body).Decode(value); err != nil {
		t.Fatalf("decoding %s: %v", url, err)
	}
	return response
}

func TestHTTPListTasks(t *testing.T) {
	t.Parallel()
	registry, httpServer := newTestHTTP(t)
	task := launch(t, registry, TaskSpec{Name: "sleeper", Command: []string{"sleep", "60"}, TTY: true, SwitchboardEnabled: true})

	var infos []TaskInfo
	response := getJSON(t, httpServer.URL+"/v1/tasks", false, &infos)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", response.StatusCode)
	}
	if len(infos) != 1 || infos[0].ID != task.ID {
		t.Fatalf("tasks = %+v, want [%s]", infos, task.ID)
	}
	if infos[0].State != StateRunning || !infos[0].TTY || infos[0].ExitCode != nil {
		t.Errorf("task info = %+v", infos[0])
	}

	var info TaskInfo
	getJSON(t, httpServer.URL+"/v1/tasks/"+task.ID, false, &info)
	if info.ID != task.ID {
		t.Errorf("GET task ID = %q, want %q", info.ID, task.ID)
	}
}

func TestHTTPReadFile(t *testing.T) {
	t.Parallel()
	registry, httpServer := newTestHTTP(t)
	task := launch(t, registry, TaskSpec{
		Name:    "printer",
		Command: []string{"sh", "-c", "printf 'line1\\nline2\\n'; printf 'oops\\n' >&2"},
	})
	waitExit(t, task.Process())
	base := fmt.Sprintf("%s/v1/tasks/%s/files/", httpServer.URL, task.ID)

	tests := []struct {
		path         string
		wantData     string
		wantOffset   uint64
		wantComplete bool
	}{
		{"stdout", "line1\nline2\n", 0, true},
		{"stdout?offset=6", "line2\n", 6, true},
		{"stdout?offset=0&length=3", "lin", 0, false},
		{"stdout?offset=-1", "", 12, true},
		{"stdout?offset=100", "", 12, true},
		{"stderr", "oops\n", 0, true},
	}
	for _, test := range tests {
		var chunk FileChunk
		response := getJSON(t, base+test.path, false, &chunk)
		if response.StatusCode != http.StatusOK {
			t.Errorf("%s: status = %d", test.path, response.StatusCode)
			continue
		}
		if string(chunk.Data) != test.wantData || chunk.Offset != test.wantOffset || chunk.Complete != test.wantComplete {
			t.Errorf("%s: chunk = {data %q, offset %d, complete %v}, want {%q, %d, %v}",
				test.path, chunk.Data, chunk.Offset, chunk.Complete, test.wantData, test.wantOffset, test.wantComplete)
		}
	}
}

func TestHTTPReadFileRunningTaskIsIncomplete(t *testing.T) {
	t.Parallel()
	registry, httpServer := newTestHTTP(t)
	task := launch(t, registry, TaskSpec{Name: "chatty", Command: []string{"sh", "-c", "echo started; sleep 60"}})
	waitForStream(t, task.Process().Stdout, "started")

	var chunk FileChunk
	getJSON(t, fmt.Sprintf("%s/v1/tasks/%s/files/stdout", httpServer.URL, task.ID), false, &chunk)
	if string(chunk.Data) != "started\n" || chunk.Complete {
		t.Errorf("chunk = {data %q, complete %v}, want {%q, false}", chunk.Data, chunk.Complete, "started\n")
	}
}

func TestHTTPCompressesLargeResponses(t *testing.T) {
	t.Parallel()
	registry, httpServer := newTestHTTP(t)
	task := launch(t, registry, TaskSpec{Name: "bulk", Command: []string{"sh", "-c", "i=0; while [ $i -lt 500 ]; do echo log line $i; i=$((i+1)); done"}})
	waitExit(t, task.Process())
	url := fmt.Sprintf("%s/v1/tasks/%s/files/stdout", httpServer.URL, task.ID)

	var compressed FileChunk
	response := getJSON(t, url, true, &compressed)
	if got := response.Header.Get("Content-Encoding"); got != "zstd" {
		t.Errorf("Content-Encoding = %q, want zstd", got)
	}
	var plain FileChunk
	response = getJSON(t, url, false, &plain)
	if got := response.Header.Get("Content-Encoding"); got != "" {
		t.Errorf("Content-Encoding without Accept-Encoding = %q, want none", got)
	}
	if string(compressed.Data) != string(plain.Data) || !strings.HasSuffix(string(plain.Data), "log line 499\n") {
		t.Errorf("compressed and plain reads differ or are truncated (%d vs %d bytes)", len(compressed.Data), len(plain.Data))
	}
}

func TestHTTPErrors(t *testing.T) {
	t.Parallel()
	registry, httpServer := newTestHTTP(t)
	task := launch(t, registry, TaskSpec{Name: "idle", Command: []string{"sleep", "60"}})

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/v1/tasks/missing", http.StatusNotFound},
		{"/v1/tasks/missing/files/stdout", http.StatusNotFound},
		{"/v1/tasks/" + task.ID + "/files/stdin", http.StatusNotFound},
		{"/v1/tasks/" + task.ID + "/files/stdout?offset=-2", http.StatusBadRequest},
		{"/v1/tasks/" + task.ID + "/files/stdout?offset=abc", http.StatusBadRequest},
		{"/v1/tasks/" + task.ID + "/files/stdout?length=0", http.StatusBadRequest},
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

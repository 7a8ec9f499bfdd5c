// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bureau-foundation/taskctl/lib/netutil"
)

// ErrNotFound is returned when the switchboard has no task with the
// requested ID, or no file at the requested sandbox path.
var ErrNotFound = errors.New("not found")

// Client reads the switchboard HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the API at baseURL. A nil httpClient
// uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Tasks lists every task in launch order.
func (c *Client) Tasks(ctx context.Context) ([]TaskInfo, error) {
	var tasks []TaskInfo
	if err := c.get(ctx, "/v1/tasks", &tasks); err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return tasks, nil
}

// Task returns one task by exact ID. A missing task is ErrNotFound.
func (c *Client) Task(ctx context.Context, id string) (TaskInfo, error) {
	var task TaskInfo
	if err := c.get(ctx, "/v1/tasks/"+url.PathEscape(id), &task); err != nil {
		return TaskInfo{}, fmt.Errorf("reading task %s: %w", id, err)
	}
	return task, nil
}

// Browse lists the sandbox directory at name in task id. A regular
// file lists as itself. A missing task or path is ErrNotFound.
func (c *Client) Browse(ctx context.Context, id, name string) ([]FileInfo, error) {
	var files []FileInfo
	path := "/v1/tasks/" + url.PathEscape(id) + "/browse?path=" + url.QueryEscape(name)
	if err := c.get(ctx, path, &files); err != nil {
		return nil, fmt.Errorf("browsing %s in task %s: %w", name, id, err)
	}
	return files, nil
}

// Download opens the sandbox file at name in task id. The caller closes
// the returned body.
func (c *Client) Download(ctx context.Context, id, name string) (io.ReadCloser, error) {
	path := "/v1/tasks/" + url.PathEscape(id) + "/download?path=" + url.QueryEscape(name)
	response, err := c.do(ctx, path, "application/octet-stream")
	if err != nil {
		return nil, fmt.Errorf("downloading %s from task %s: %w", name, id, err)
	}
	return response.Body, nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	response, err := c.do(ctx, path, "application/json")
	if err != nil {
		return err
	}
	defer response.Body.Close()

	body, err := netutil.ResponseBody(response)
	if err != nil {
		return err
	}
	if err := netutil.DecodeResponse(body, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// do sends a GET and returns the response when its status is 200. Any
// other status closes the body and becomes an error.
func (c *Client) do(ctx context.Context, path, accept string) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	request.Header.Set("Accept", accept)
	if accept == "application/json" {
		request.Header.Set("Accept-Encoding", netutil.EncodingZstd)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	if response.StatusCode == http.StatusOK {
		return response, nil
	}
	defer response.Body.Close()
	if response.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("HTTP %d: %s", response.StatusCode, strings.TrimSpace(netutil.ErrorBody(response.Body)))
}

// MatchTasks returns the tasks whose ID contains pattern, keeping their
// order. An exact ID match is returned alone. An empty pattern matches
// every task.
func MatchTasks(tasks []TaskInfo, pattern string) []TaskInfo {
	for _, task := range tasks {
		if task.ID == pattern {
			return []TaskInfo{task}
		}
	}
	var matches []TaskInfo
	for _, task := range tasks {
		if strings.Contains(task.ID, pattern) {
			matches = append(matches, task)
		}
	}
	return matches
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestClientTasks(t *testing.T) {
	t.Parallel()
	registry, httpServer := newTestHTTP(t)
	first := launch(t, registry, TaskSpec{Name: "web", Command: []string{"sleep", "60"}})
	second := launch(t, registry, TaskSpec{Name: "worker", Command: []string{"sleep", "60"}})

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	client := NewClient(httpServer.URL+"/", nil)

	tasks, err := client.Tasks(ctx)
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != first.ID || tasks[1].ID != second.ID {
		t.Fatalf("Tasks = %+v, want [%s %s]", tasks, first.ID, second.ID)
	}

	task, err := client.Task(ctx, second.ID)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if task.Name != "worker" || task.State != StateRunning {
		t.Errorf("Task = %+v, want running worker", task)
	}

	if _, err := client.Task(ctx, "web.missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Task(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMatchTasks(t *testing.T) {
	t.Parallel()
	tasks := []TaskInfo{
		{ID: "cat.1111"},
		{ID: "cat.2222"},
		{ID: "cat"},
		{ID: "sleep.3333"},
	}
	tests := []struct {
		pattern string
		want    []string
	}{
		{"sleep", []string{"sleep.3333"}},
		{"cat.", []string{"cat.1111", "cat.2222"}},
		{"cat", []string{"cat"}},
		{"2", []string{"cat.2222"}},
		{"", []string{"cat.1111", "cat.2222", "cat", "sleep.3333"}},
		{"nope", nil},
	}
	for _, test := range tests {
		got := MatchTasks(tasks, test.pattern)
		var ids []string
		for _, task := range got {
			ids = append(ids, task.ID)
		}
		if len(ids) != len(test.want) {
			t.Errorf("MatchTasks(%q) = %v, want %v", test.pattern, ids, test.want)
			continue
		}
		for index := range ids {
			if ids[index] != test.want[index] {
				t.Errorf("MatchTasks(%q) = %v, want %v", test.pattern, ids, test.want)
				break
			}
		}
	}
}

func TestClientUnreachable(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	client := NewClient("http://127.0.0.1:1", nil)
	if _, err := client.Tasks(ctx); err == nil {
		t.Fatal("Tasks against a closed port succeeded")
	}
}

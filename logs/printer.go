// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logs

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// Printer writes log output for one or more tasks, separating tasks
// with "===> <task> <===" headers. Headers are bold when the output is
// a terminal.
type Printer struct {
	output *termenv.Output
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{output: termenv.NewOutput(w)}
}

// Header writes the header for a task.
func (p *Printer) Header(task string) error {
	header := p.output.String(fmt.Sprintf("===> %s <===", task)).Bold()
	_, err := fmt.Fprintln(p.output, header)
	return err
}

// Write writes log bytes unchanged.
func (p *Printer) Write(data []byte) (int, error) {
	return p.output.Write(data)
}

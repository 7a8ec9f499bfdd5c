// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logs reads task output files by offset: printing the last
// lines of a file ([Tail]) and following it as it grows
// ([Follower.Follow]).
//
// A [Source] is any offset-addressed byte stream; [HTTPSource] reads
// one of a task's files from the switchboard API. Reads never wait for
// data: following is a poll loop that sleeps a fixed interval after an
// empty read and keeps going until the caller cancels or the source
// reports that the file is complete.
package logs

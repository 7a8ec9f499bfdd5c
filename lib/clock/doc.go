// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source so that timing-driven
// code (session heartbeats, log follow polling) can be tested without
// sleeping.
//
// Production code takes a [Clock] and is handed [Real]. Tests hand it a
// [FakeClock] from [Fake], wait for the code under test to register its
// timer with [FakeClock.WaitForTimers], and then move time forward with
// [FakeClock.Advance]:
//
//	fake := clock.Fake(time.Unix(0, 0))
//	go follower.Follow(ctx, cursor, output)
//	fake.WaitForTimers(1)
//	fake.Advance(time.Second)
package clock

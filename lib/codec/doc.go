// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the single place taskctl configures CBOR. Control
// payloads on the session wire (metadata, exit status, heartbeats) are
// encoded with [Marshal] and decoded with [Unmarshal] so that both ends
// agree on one encoding configuration.
//
// Encoding uses RFC 8949 Core Deterministic Encoding. Decoding ignores
// unknown fields, so older clients keep working when the switchboard
// adds a field to a payload.
package codec

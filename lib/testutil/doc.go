// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides small helpers shared across test suites:
// channel receive/send with timeout safety valves, so individual tests
// never hang indefinitely on a channel that the code under test failed
// to service.
package testutil

// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code injects
// Real(); tests inject Fake() and drive time deterministically with
// Advance. Correlation windows, trace deadlines, enrichment budgets, and
// reconnect backoff all read time through this interface, so every
// timing behavior in the daemon can be tested without sleeping.
package clock

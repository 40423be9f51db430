// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Sightline.
//
// Configuration is loaded from a single YAML file specified by the
// --config flag. There are no fallbacks or automatic discovery; every
// field has a sensible default, so a missing file is only an error when
// a path was given explicitly. The correlation tuning values are
// deliberately exposed here rather than hard-coded: the join window and
// close timeout are empirical, and deployments with unusual event-burst
// shapes need to adjust them.
package config

// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !pyroscope

package profiling

import "gopkg.in/op/go-logging.v1"

// Start does nothing unless built with the pyroscope tag.
func Start(log *logging.Logger, _ string) (func(), error) {
	log.Info("Built without pyroscope support, profiling disabled")
	return func() {}, nil
}

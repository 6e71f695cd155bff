// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The filtermap Authors

package pipeline

import (
	"github.com/joamaki/filtermap/internal/logger"
	"github.com/joamaki/filtermap/stream"
)

func loggerConfig() logger.Config {
	var c logger.Config
	c.ApplyDefaults()
	return c
}

func sliceSource(items ...string) stream.Observable[string] {
	return stream.FromSlice(items)
}

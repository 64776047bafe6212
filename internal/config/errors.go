// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package config

import "errors"

var (
	// ErrInvalidPort is returned when the configured port is out of range.
	ErrInvalidPort = errors.New("port must be between 1 and 65535")

	// ErrInvalidCacheTimeout is returned when the cache timeout is not positive.
	ErrInvalidCacheTimeout = errors.New("cache timeout must be greater than 0")
)

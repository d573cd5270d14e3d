// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package pkg contains metadata about skua.
package pkg

// Version is the fallback version reported when the binary was built
// without -ldflags "-X main.version=x.x.x".
var Version = "dev"

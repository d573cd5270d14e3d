// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/skua-project/skua/cmd"
)

// version is the current version of skua.
// It is set at build time by using -ldflags "-X main.version=x.x.x".
var version string

func main() {
	cmd.Execute(version)
}

// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/marcelocantos/pipesh/internal/cli"
)

var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}

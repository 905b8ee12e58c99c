// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package main

import (
	"fmt"
	"os"

	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

// exitCode is 2 for rejected input and 1 for every other failure.
func exitCode(err error) int {
	if dserr.IsInvalidInput(err) {
		return 2
	}
	return 1
}

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), err)
		os.Exit(exitCode(err))
	}
}

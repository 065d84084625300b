// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError signals a non-zero exit code without printing an extra
// error message. The main function checks returned errors for the
// ExitCode method and exits silently with that code — the command is
// expected to have written its own output already.
//
// Used where a non-zero exit is an answer rather than a failure, such
// as "status" reporting an inconsistent ledger.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// Copyright (C) 2026 Dockhand Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import "os"

func main() {
	// Run functions exit with their stage code; reaching here with an
	// error means cobra itself rejected the invocation.
	if err := rootCmd.Execute(); err != nil {
		os.Exit(int(ExitGeneral))
	}
	os.Exit(int(ExitOK))
}

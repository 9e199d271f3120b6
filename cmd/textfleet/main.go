// Command textfleet runs the batch coordinator, its workers and the
// submitting client from one binary.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

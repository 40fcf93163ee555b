// Command syncctl is a command-line demonstrator for the offline sync
// engine: it drives insert/update/delete/push/pull/purge/cancel/watch
// against the sqlite DataSource and http RemoteClient adapters.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

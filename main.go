package main

import (
	"fmt"
	"os"
)

func main() {
	loaded, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "wsc: reading .wsc.toml: %v\n", err)
		os.Exit(1)
	}
	cfg = loaded

	if err := rootCmd.Execute(); err != nil {
		// cobra has already printed usage/error text; just set the exit code.
		os.Exit(1)
	}
}

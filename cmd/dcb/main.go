package main

import (
	"os"

	"dcb/internal/slogutil"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger := slogutil.NewLogger(os.Stderr, slogutil.LevelFromString("error"))
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// Package main is the entry point for the airpayctl operator CLI.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"airpay/internal/cli"
)

func main() {
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

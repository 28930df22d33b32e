package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/felixgeelhaar/logpulse/internal/cli"
)

func main() {
	_ = godotenv.Load()
	code := cli.Run(os.Args, os.Stdout, os.Stderr, cli.BuildService(os.Stdout, os.Stderr))
	os.Exit(code)
}

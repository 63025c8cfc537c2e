package main

import (
	"crypto-pulse/internal/cli"
)

func main() {
	cli.Execute()
}

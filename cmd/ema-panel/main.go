package main

import (
	"os"

	"github.com/koscakluka/ema-panel/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

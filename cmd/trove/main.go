package main

import (
	"os"

	"github.com/trove-storage/trove/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}

package main

import (
	"os"

	"github.com/Jeffrey0117/Ytify/internal/cli"
)

func main() {
	os.Exit(cli.ExecuteTUI())
}

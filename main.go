package main

import (
	"os"

	"github.com/Digital-Shane/title-resolve/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}

package main

import (
	"os"

	"github.com/campusdesk/desk/internal/command"
)

func main() {
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

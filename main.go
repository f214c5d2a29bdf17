package main

import (
	"os"

	"github.com/zenexasolutions/Fight/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

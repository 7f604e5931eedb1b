package main

import (
	"os"

	"github.com/catawampus/cwmpd/cmd"
)

func main() {
	if err := cmd.CmdCwmpd.Execute(); err != nil {
		os.Exit(1)
	}
}

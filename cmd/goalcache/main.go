package main

import (
	"os"

	"github.com/goliatone/go-goal-cache/cmd/goalcache/cmd"
)

func main() {
	os.Exit(cmd.Execute(os.Args[1:], os.Stdout, os.Stderr))
}

package main

import (
	"github.com/tagworks/uhf.go/pkg/cli/sh"

	_ "github.com/tagworks/uhf.go/pkg/cli/cmds/reader"
)

//go-build: CGO_ENABLED=0

func main() {
	sh.Main()
}

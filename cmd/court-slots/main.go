package main

import (
	"github.com/pfrederiksen/court-slots/internal/cli"
)

func main() {
	cli.Execute()
}

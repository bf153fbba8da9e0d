package main

import (
	_ "time/tzdata"

	"pantau/internal/cli"
)

func main() {
	cli.Execute()
}

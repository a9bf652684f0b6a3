// The main package for the bookharvest executable.
package main

import (
	"github.com/yunqi-data/bookharvest/cmd"
)

func main() {
	cmd.Execute()
}

// The main package for the harvester executable.
package main

import (
	"github.com/auctionlens/gazette-harvester/cmd"
)

func main() {
	cmd.Execute()
}

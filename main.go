package main

import (
	"github.com/axellelanca/affiliatelinks/cmd"
	_ "github.com/axellelanca/affiliatelinks/cmd/cli"
	_ "github.com/axellelanca/affiliatelinks/cmd/server"
)

func main() {
	cmd.Execute()
}

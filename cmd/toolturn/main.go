package main

import "github.com/isaacphi/toolturn/internal/ui/cli"

func main() {
	cli.Execute()
}

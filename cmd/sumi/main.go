package main

import (
	cmd "github.com/SiliconLion/sumi/internal/cli"
)

func main() {
	cmd.Execute()
}

package main

import (
	"github.com/tenniscourt/slotwatch/cmd"
)

func main() {
	cmd.Execute()
}

package main

import (
	"os"

	"github.com/cppla/orderimages/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

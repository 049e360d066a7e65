package main

import (
	"github.com/AzielCF/az-mediacache/cmd"
)

func main() {
	cmd.Execute()
}

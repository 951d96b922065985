package main

import (
	"fmt"
	"os"

	"github.com/utkarsh5026/papply/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "papply:", err)
		os.Exit(1)
	}
}

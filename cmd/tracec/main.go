package main

import (
	"context"
	"os"
)

func main() {
	os.Exit(newCLI().execute(context.Background(), os.Args[1:]))
}

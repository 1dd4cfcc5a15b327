package main

import "github.com/vietddude/resilience/internal/cli"

func main() {
	cli.Execute()
}

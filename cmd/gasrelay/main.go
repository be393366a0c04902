package main

import "github.com/sponsorlabs/gasrelay/internal/cli"

func main() {
	cli.Execute()
}

package main

import "rollcall/internal/cli"

func main() {
	cli.Execute()
}

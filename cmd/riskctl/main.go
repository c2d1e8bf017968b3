package main

import "securestay-risk/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/talkdrop/talkdrop/internal/cli"

func main() {
	cli.Execute()
}

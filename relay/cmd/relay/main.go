package main

import "github.com/obsidianstack/alertrelay/relay/internal/cli"

func main() {
	cli.Execute()
}

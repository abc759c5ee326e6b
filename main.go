package main

import "github.com/nanocat-ai/nanocat/cmd"

func main() {
	cmd.Execute()
}

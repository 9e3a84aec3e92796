package main

import "github.com/bryanchriswhite/FrameTap/cmd/frametap/commands"

func main() {
	commands.Execute()
}

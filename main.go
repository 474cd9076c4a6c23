package main

import "github.com/timvw/jump-ssh/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/Quidge/oenv/cmd"

func main() {
	cmd.Execute()
}

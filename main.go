package main

import "scopebench/cmd"

func main() {
	cmd.Execute()
}

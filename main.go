package main

import "daq-trigger/cmd"

func main() {
	cmd.Execute()
}

package main

import "channel-manager/cmd"

func main() {
	cmd.Execute()
}

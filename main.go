package main

import "chatpoll/cmd"

func main() {
	cmd.Execute()
}

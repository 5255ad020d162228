package main

import "rmcli/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/chrisdamba/dronesim/cmd"

func main() {
	cmd.Execute()
}

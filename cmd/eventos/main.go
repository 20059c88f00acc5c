package main

import "github.com/Togather-Foundation/eventos/cmd/eventos/cmd"

func main() {
	cmd.Execute()
}

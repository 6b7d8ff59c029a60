package main

import "github.com/hmans/entityql/cmd"

func main() {
	cmd.Execute()
}

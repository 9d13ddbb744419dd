package main

import "cqlmigrate/cmd"

func main() {
	cmd.Execute()
}

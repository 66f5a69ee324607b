package main

import "github.com/mabhi256/refwatch/cmd"

func main() {
	cmd.Execute()
}

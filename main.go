package main

import "github.com/jmehdipour/dbrelay/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/example/productmatch/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/ma99us/MikeDB/cmd"

func main() {
	cmd.Execute()
}

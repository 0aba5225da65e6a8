package main

import "github.com/facebuddy/facebuddy/cmd"

func main() {
	cmd.Execute()
}

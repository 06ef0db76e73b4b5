package main

import "github.com/turbolytics/historian/internal/cmd"

func main() {
	cmd.Execute()
}

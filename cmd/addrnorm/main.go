package main

import "github.com/JonMunkholm/addrnorm/internal/cli"

func main() {
	cli.Execute()
}

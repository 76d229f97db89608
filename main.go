package main

import "github.com/Mteixeira88/cow-shake/cli"

func main() {
	cli.Main()
}

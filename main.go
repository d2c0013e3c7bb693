package main

import "github.com/Mmx233/QLink/cmd"

func main() {
	cmd.Execute()
}

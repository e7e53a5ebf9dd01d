package main

import "github.com/ekomarov/gemchat/cmd/gemchat/cmd"

func main() {
	cmd.Execute()
}

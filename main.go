package main

import "github.com/userhub/apiserver/cmd"

func main() {
	cmd.Execute()
}

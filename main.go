package main

import "github.com/ValentinKolb/cbrest/cmd"

func main() {
	cmd.Execute()
}

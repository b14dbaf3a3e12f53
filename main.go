package main

import "github.com/Atyanta/VideoFaceDLFromYt/cmd"

func main() {
	cmd.Execute()
}

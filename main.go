package main

import "github.com/ovaphlow/pitchfork/service-identity-go/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/stuagano/litellm/cmd"

func main() {
	cmd.Execute()
}

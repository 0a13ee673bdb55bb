// main.go
package main

import "github.com/relaymesh/gauntlet-cli/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/arcward/scnewsbot/cmd"

func main() {
	cmd.Execute()
}

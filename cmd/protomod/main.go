package main

import "github.com/dbsmedya/protomod/cmd/protomod/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/frahmantamala/payconfirm/cmd"

func main() {
	cmd.Execute()
}

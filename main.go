package main

import "github.com/frahmantamala/coaching-payments/cmd"

func main() {
	cmd.Execute()
}

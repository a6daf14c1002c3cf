package main

import "btc-advisor/internal/cli"

func main() {
	cli.Execute()
}

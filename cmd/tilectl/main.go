package main

import "github.com/jaennil/guide_helper/backend/offline/internal/cli"

func main() {
	cli.Execute()
}

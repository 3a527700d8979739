package main

import (
	"os"

	"docsift/app"
)

func main() {
	os.Exit(app.Run())
}

package main

import "bomsort/internal/app"

func main() {
	app.Main()
}

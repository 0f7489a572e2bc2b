package main

import "feedbackdesk/internal/app"

func main() {
	app.Main()
}

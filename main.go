package main

import (
	"github.com/lifetrack-app/lifetrack/backend"
	"github.com/lifetrack-app/lifetrack/frontend"
)

// The binary runs the whole system in one process: the REST backend in the
// background and the interactive CLI in the foreground. Each side loads
// its own .env.
func main() {
	go backend.RunBackend()
	frontend.RunFrontend()
}

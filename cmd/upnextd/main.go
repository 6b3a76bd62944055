package main

import (
	"log"

	"github.com/upnext/upnextd/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ upnextd failed to start: %v", err)
	}
}

package main

import (
	"log"

	"paydesk/internal/app/server"
)

func main() {
	if err := server.Run(); err != nil {
		log.Fatalf("paydesk: %v", err)
	}
}

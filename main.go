package main

import (
	"log"

	_ "contact-sync/docs"
	"contact-sync/internal/app"
)

// @title Contact Sync API
// @version 1.0
// @description Bidirectional CardDAV contact sync.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}

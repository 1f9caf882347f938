// Command storecheck opens a SQLite contact store, applies the schema and
// runs a round trip through the tables the sync engine writes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"contact-sync/internal/models"
	"contact-sync/internal/storage/sqlite"
)

func main() {
	path := flag.String("db", "", "database file to check; a temporary file when empty")
	flag.Parse()

	dbPath := *path
	if dbPath == "" {
		tmpfile, err := os.CreateTemp("", "storecheck-*.db")
		if err != nil {
			log.Fatal(err)
		}
		tmpfile.Close()
		defer os.Remove(tmpfile.Name())
		dbPath = tmpfile.Name()
	}

	store, err := sqlite.Open(&sqlite.Config{DatabasePath: dbPath})
	if err != nil {
		log.Fatal("Failed to open store:", err)
	}
	defer store.Close()
	ctx := context.Background()

	fmt.Println("Testing person operations...")
	person := &models.Person{
		UserID:      "storecheck",
		UID:         "storecheck-ada",
		Name:        "Ada",
		Surname:     "Lovelace",
		SyncEnabled: true,
		Emails:      []models.Email{{Type: "home", Email: "ada@example.com"}},
	}
	if err := store.CreatePerson(ctx, person); err != nil {
		log.Fatal("Failed to create person:", err)
	}
	fmt.Println("✓ Created person")

	retrieved, err := store.GetPerson(ctx, person.UserID, person.ID)
	if err != nil {
		log.Fatal("Failed to get person:", err)
	}
	fmt.Printf("✓ Retrieved person: %s (%d emails)\n", retrieved.DisplayName(), len(retrieved.Emails))

	fmt.Println("\nTesting connection operations...")
	conn := &models.CardDavConnection{
		UserID:      person.UserID,
		ServerURL:   "https://dav.example.com/",
		Username:    "ada",
		SyncEnabled: true,
	}
	if err := store.UpsertConnection(ctx, conn); err != nil {
		log.Fatal("Failed to save connection:", err)
	}
	fmt.Printf("✓ Saved connection with ID: %s\n", conn.ID)

	fmt.Println("\nTesting mapping operations...")
	mapping := &models.CardDavMapping{
		ConnectionID: conn.ID,
		PersonID:     person.ID,
		Href:         "https://dav.example.com/book/" + person.UID + ".vcf",
		ETag:         `"1"`,
		UID:          person.UID,
		SyncStatus:   models.SyncStatusSynced,
	}
	if err := store.CreateMapping(ctx, mapping); err != nil {
		log.Fatal("Failed to create mapping:", err)
	}
	mappings, err := store.ListMappingsByConnection(ctx, conn.ID)
	if err != nil || len(mappings) != 1 {
		log.Fatalf("Failed to list mappings: %v (found %d)", err, len(mappings))
	}
	fmt.Println("✓ Created and listed mapping")

	if err := store.Health(ctx); err != nil {
		log.Fatal("Health check failed:", err)
	}
	fmt.Println("\n✅ All store checks passed!")
}

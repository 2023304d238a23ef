package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"marketchat/backend/internal/auth"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/storage"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

  token <identity> [provider]   issue a credential for local testing
  chats <identity> [provider]   list an identity's chats
  history <chat_id> [limit]     print the newest messages of a chat
  migrate                       create or update the chat tables`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, _, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	switch os.Args[1] {
	case "token":
		if len(os.Args) < 3 {
			fmt.Println("Usage: admin token <identity> [provider]")
			os.Exit(1)
		}
		identity := models.Identity{ID: os.Args[2], IsProvider: isProviderArg(3)}
		issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, 24*time.Hour)
		if err != nil {
			log.Fatalf("Error creating issuer: %v", err)
		}
		token, err := issuer.Issue(identity)
		if err != nil {
			log.Fatalf("Error issuing token: %v", err)
		}
		fmt.Println(token)
	case "chats":
		if len(os.Args) < 3 {
			fmt.Println("Usage: admin chats <identity> [provider]")
			os.Exit(1)
		}
		if err := listChats(ctx, openStore(cfg), os.Args[2], isProviderArg(3)); err != nil {
			log.Fatalf("Error listing chats: %v", err)
		}
	case "history":
		if len(os.Args) < 3 {
			fmt.Println("Usage: admin history <chat_id> [limit]")
			os.Exit(1)
		}
		limit := 0
		if len(os.Args) > 3 {
			limit, err = strconv.Atoi(os.Args[3])
			if err != nil {
				fmt.Println("Invalid limit. Please provide an integer.")
				os.Exit(1)
			}
		}
		if err := printHistory(ctx, openStore(cfg), os.Args[2], limit); err != nil {
			log.Fatalf("Error reading history: %v", err)
		}
	case "migrate":
		if err := openStore(cfg).Migrate(ctx); err != nil {
			log.Fatalf("Error migrating: %v", err)
		}
		fmt.Println("Migrations complete.")
	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
}

func isProviderArg(i int) bool {
	return len(os.Args) > i && os.Args[i] == "provider"
}

func openStore(cfg *config.Config) storage.Store {
	if cfg.StoreDriver != "postgres" {
		log.Fatalf("admin commands need STORE_DRIVER=postgres, got %q", cfg.StoreDriver)
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), storage.GormConfig())
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	return storage.NewStorageService(db)
}

func listChats(ctx context.Context, s storage.Store, identity string, isProvider bool) error {
	list := s.ListChatsForUser
	if isProvider {
		list = s.ListChatsForProvider
	}
	chats, err := list(ctx, identity)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		fmt.Println("No chats.")
		return nil
	}
	for _, c := range chats {
		fmt.Printf("%s  user=%s provider=%s unread=%d last=%s\n",
			c.ChatID, c.UserID, c.ProviderID, c.UnreadFor(isProvider), c.ActivityAt().Format(time.RFC3339))
	}
	return nil
}

func printHistory(ctx context.Context, s storage.Store, chatID string, limit int) error {
	page, err := s.ListMessages(ctx, chatID, limit, nil)
	if err != nil {
		return err
	}
	// Oldest first reads naturally in a terminal.
	for i := len(page.Messages) - 1; i >= 0; i-- {
		m := page.Messages[i]
		fmt.Printf("[%s] %s (%s): %s\n", m.SentAt().Format(time.RFC3339), m.SenderID, models.RoleName(m.IsProviderSender), m.Content)
	}
	if page.NextCursor != nil {
		fmt.Printf("... older messages before %d\n", *page.NextCursor)
	}
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/Wikid82/aegis/internal/api/routes"
	"github.com/Wikid82/aegis/internal/config"
	"github.com/Wikid82/aegis/internal/database"
	"github.com/Wikid82/aegis/internal/models"
	"github.com/Wikid82/aegis/internal/services"
)

const demoConversation = "demo-conversation"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	db, err := database.Connect(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.ActionExecution{},
		&models.ActionLogEntry{},
		&models.ActionLock{},
		&models.SecurityDecision{},
		&models.WatchlistEntry{},
		&models.Operator{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	fmt.Println("✓ Database migrated successfully")

	auth := services.NewAuthService(db, cfg.JWTSecret, cfg.TokenTTL)
	operators := []struct{ email, name, password, role string }{
		{"admin@example.com", "Administrator", "changeme123", "admin"},
		{"assistant@example.com", "Security Assistant", "changeme123", "assistant"},
	}
	for _, o := range operators {
		var existing models.Operator
		if err := db.Where("email = ?", o.email).First(&existing).Error; err == nil {
			fmt.Printf("  Operator already exists: %s\n", o.email)
			continue
		}
		if _, err := auth.CreateOperator(o.email, o.name, o.password, o.role); err != nil {
			log.Printf("Failed to seed operator %s: %v", o.email, err)
			continue
		}
		fmt.Printf("✓ Created operator: %s (%s)\n", o.email, o.role)
	}

	catalog, err := routes.BuildCatalog(db, cfg, nil)
	if err != nil {
		log.Fatal("Failed to build action catalog:", err)
	}
	actionService := services.NewActionService(services.NewActionStore(db), catalog)

	pending, err := actionService.ListPending(context.Background(), demoConversation)
	if err != nil {
		log.Fatal("Failed to list demo actions:", err)
	}
	if len(pending) > 0 {
		fmt.Printf("  Demo conversation already has %d pending actions\n", len(pending))
		return
	}

	suggestions := []struct {
		actionType models.ActionType
		data       interface{}
	}{
		{models.ActionBlockIP, map[string]string{"ip": "203.0.113.45", "reason": "SSH brute force"}},
		{models.ActionAddToWatchlist, map[string]string{"kind": "domain", "value": "login-verify.example.net", "note": "phishing lure"}},
		{models.ActionCreateTicket, map[string]interface{}{"title": "Investigate SSH brute force from 203.0.113.45", "severity": "high"}},
	}
	for i, s := range suggestions {
		raw, _ := json.Marshal(s.data)
		rec, err := actionService.Suggest(context.Background(), demoConversation, fmt.Sprintf("demo-msg-%d", i+1), s.actionType, raw)
		if err != nil {
			log.Printf("Failed to suggest %s: %v", s.actionType, err)
			continue
		}
		fmt.Printf("✓ Suggested %s: %s\n", rec.Type, rec.ID)
	}

	fmt.Println("\n✓ Database seeding completed successfully!")
	fmt.Println("  Log in as admin@example.com to review the demo conversation.")
}

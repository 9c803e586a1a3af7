package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/threadit/threadit-server/cmd/api"
	"github.com/threadit/threadit-server/cmd/models"
	"github.com/threadit/threadit-server/cmd/utils"
	"github.com/threadit/threadit-server/db"
	"gorm.io/gorm"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			runMigrations()
			return
		case "clear-db":
			runDatabaseClear()
			return
		default:
			log.Fatalf("Unknown command: %s", os.Args[1])
		}
	}

	startServer()
}

func runMigrations() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()
	log.Println("Connected to the database for migrations")

	if err := performMigrations(DB); err != nil {
		log.Fatalf("Migration error: %v", err)
	}
	log.Println("Migrations completed successfully")
}

func performMigrations(DB *gorm.DB) error {
	migrations := map[interface{}]string{
		&models.User{}:               "User",
		&models.Follow{}:             "Follow",
		&models.PasswordResetToken{}: "PasswordResetToken",
		&models.Community{}:          "Community",
		&models.CommunityMember{}:    "CommunityMember",
		&models.Post{}:               "Post",
		&models.Vote{}:               "Vote",
		&models.SavedPost{}:          "SavedPost",
		&models.Comment{}:            "Comment",
		&models.CommentVote{}:        "CommentVote",
		&models.Message{}:            "Message",
		&models.Notification{}:       "Notification",
		&models.Device{}:             "Device",
	}

	log.Println("Starting database migrations...")
	for model, name := range migrations {
		log.Printf("Migrating %s table...", name)
		if err := DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("error migrating %s table: %w", name, err)
		}
		log.Printf("%s migration successful", name)
	}

	directories := []string{
		utils.AvatarPath,
	}

	for _, dir := range directories {
		if err := createDirectoryIfNotExist(dir); err != nil {
			log.Fatalf("Error creating directory %s: %v", dir, err)
		}
		log.Printf("Directory %s created/verified", dir)
	}

	log.Println("All migrations and directory setup completed successfully")
	return nil
}

func createDirectoryIfNotExist(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("could not create directory %s: %w", path, err)
		}
	}
	return nil
}

func startServer() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()
	log.Println("Connected to the database")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	server := api.NewApiServer(":"+port, DB)

	go func() {
		if err := server.Run(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()
	log.Printf("Server running on port %s", port)

	<-quit
	log.Println("Shutting down server...")
}

func clearDatabase(DB *gorm.DB, tables []interface{}) error {
	if len(tables) == 0 {
		// Default: drop everything, dependents first.
		tables = []interface{}{
			&models.Device{},
			&models.Notification{},
			&models.Message{},
			&models.CommentVote{},
			&models.Comment{},
			&models.SavedPost{},
			&models.Vote{},
			&models.Post{},
			&models.CommunityMember{},
			&models.Community{},
			&models.PasswordResetToken{},
			&models.Follow{},
			&models.User{},
		}
	}

	log.Println("Dropping tables...")

	for _, table := range tables {
		if err := DB.Migrator().DropTable(table); err != nil {
			log.Printf("Warning dropping table %T: %v", table, err)
		} else {
			log.Printf("Table %T dropped", table)
		}
	}

	return nil
}

func runDatabaseClear() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()

	log.Println("Preparing to clear database...")

	var confirmation string
	fmt.Print("Are you sure you want to clear the database? (yes/no): ")
	fmt.Scanln(&confirmation)

	if confirmation != "yes" {
		log.Println("Database clearing cancelled.")
		return
	}

	var tableNames string
	fmt.Print("Enter table names to clear (comma separated) or leave blank to clear all: ")
	fmt.Scanln(&tableNames)

	var tables []interface{}
	if tableNames != "" {
		for _, table := range strings.Split(tableNames, ",") {
			switch strings.TrimSpace(table) {
			case "User":
				tables = append(tables, &models.User{})
			case "Follow":
				tables = append(tables, &models.Follow{})
			case "PasswordResetToken":
				tables = append(tables, &models.PasswordResetToken{})
			case "Community":
				tables = append(tables, &models.Community{})
			case "CommunityMember":
				tables = append(tables, &models.CommunityMember{})
			case "Post":
				tables = append(tables, &models.Post{})
			case "Vote":
				tables = append(tables, &models.Vote{})
			case "SavedPost":
				tables = append(tables, &models.SavedPost{})
			case "Comment":
				tables = append(tables, &models.Comment{})
			case "CommentVote":
				tables = append(tables, &models.CommentVote{})
			case "Message":
				tables = append(tables, &models.Message{})
			case "Notification":
				tables = append(tables, &models.Notification{})
			case "Device":
				tables = append(tables, &models.Device{})
			default:
				log.Printf("Unknown table: %s", table)
			}
		}
	}

	if err := clearDatabase(DB, tables); err != nil {
		log.Fatalf("Error clearing database: %v", err)
	}

	log.Println("Database cleared successfully")
}

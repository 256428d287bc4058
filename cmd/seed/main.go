package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"catalogapi/internal/database"
	"catalogapi/internal/domain"
)

func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "catalog.db"
	}

	db, err := database.Connect(dsn)
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}

	log.Println("Running AutoMigrate...")
	if err := db.AutoMigrate(
		&domain.User{},
		&domain.ProductLine{},
		&domain.Product{},
		&domain.AuditLog{},
	); err != nil {
		log.Fatal("AutoMigrate failed:", err)
	}

	log.Println("Cleaning old data...")
	db.Exec("DELETE FROM audit_logs")
	db.Exec("DELETE FROM products")
	db.Exec("DELETE FROM product_lines")
	db.Exec("DELETE FROM users")

	log.Println("Creating users...")
	adminHash, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	admin := domain.User{
		Username:    "admin",
		Password:    string(adminHash),
		DisplayName: "Administrator",
		Role:        domain.RoleAdmin,
	}
	db.Create(&admin)
	log.Println("Admin created: admin / admin123")

	editorHash, _ := bcrypt.GenerateFromPassword([]byte("editor123"), bcrypt.DefaultCost)
	editor := domain.User{
		Username:    "editor",
		Password:    string(editorHash),
		DisplayName: "Catalog Editor",
		Role:        domain.RoleEditor,
		CreatedBy:   admin.ID,
		UpdatedBy:   admin.ID,
	}
	db.Create(&editor)

	log.Println("Creating product lines...")
	lines := []domain.ProductLine{
		{Name: "Alpha", Description: "Flagship line", CreatedBy: admin.ID, UpdatedBy: admin.ID},
		{Name: "Beta", Description: "Budget line", CreatedBy: admin.ID, UpdatedBy: admin.ID},
	}
	for i := range lines {
		db.Create(&lines[i])
	}

	log.Println("Creating products...")
	products := []domain.Product{
		{ProductName: "Alpha One", ProductLineID: lines[0].ID, SKU: "ALP-001", CreatedBy: admin.ID, UpdatedBy: admin.ID},
		{ProductName: "Alpha Two", ProductLineID: lines[0].ID, SKU: "ALP-002", CreatedBy: admin.ID, UpdatedBy: admin.ID},
		{ProductName: "Beta One", ProductLineID: lines[1].ID, SKU: "BET-001", CreatedBy: admin.ID, UpdatedBy: admin.ID},
	}
	for i := range products {
		db.Create(&products[i])
	}

	log.Println("Seed complete.")
}

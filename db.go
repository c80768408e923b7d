package main

import (
	"os"
	"strings"
	"time"

	"agroscan/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var db *gorm.DB

func initDB() {
	if cfg.DBDSN == "" {
		logger.Fatal("DB_DSN is not set. This project requires a Postgres DSN in DB_DSN.")
	}
	var err error
	db, err = gorm.Open(postgres.Open(cfg.DBDSN), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect postgres database", zap.Error(err))
	}
	// Control schema migrations with env DB_AUTO_MIGRATE (default true). Any permission errors will be logged and ignored.
	shouldMigrate := true
	if v := os.Getenv("DB_AUTO_MIGRATE"); v != "" {
		lv := strings.ToLower(v)
		if lv == "false" || lv == "0" || lv == "no" {
			shouldMigrate = false
		}
	}
	if shouldMigrate {
		migrateSchema()
	}
	seedDB()
}

// migrateSchema migrates models individually so a failure on one doesn't block others.
// Roles go first so the users FK can be applied safely.
func migrateSchema() {
	if err := db.AutoMigrate(&models.Role{}); err != nil {
		logger.Warn("migration warning (roles)", zap.Error(err))
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		logger.Warn("migration warning (users)", zap.Error(err))
	}
	if err := db.AutoMigrate(&models.RefreshToken{}); err != nil {
		logger.Warn("migration warning (refresh_tokens)", zap.Error(err))
	}
	if err := db.AutoMigrate(&models.ImageRecord{}); err != nil {
		logger.Warn("migration warning (image_records)", zap.Error(err))
	}
	if err := db.AutoMigrate(&models.Tip{}); err != nil {
		logger.Warn("migration warning (tips)", zap.Error(err))
	}
	if err := db.AutoMigrate(&models.Disease{}); err != nil {
		logger.Warn("migration warning (diseases)", zap.Error(err))
	}
	if err := db.AutoMigrate(&models.News{}); err != nil {
		logger.Warn("migration warning (news)", zap.Error(err))
	}
}

func seedDB() {
	// Ensure master roles exist
	roles := []models.Role{
		{Name: models.RoleAdministrator, Description: "full access"},
		{Name: models.RoleUser, Description: "regular user"},
	}
	for _, r := range roles {
		var cnt int64
		db.Model(&models.Role{}).Where("name = ?", r.Name).Count(&cnt)
		if cnt == 0 {
			db.Create(&r)
		}
	}

	// Seed the admin user once
	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count == 0 {
		var role models.Role
		if err := db.Where("name = ?", models.RoleAdministrator).First(&role).Error; err != nil {
			logger.Warn("failed to find administrator role", zap.Error(err))
		}
		rid := role.ID
		admin := models.User{Username: "admin", RoleID: &rid}
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
		admin.HashedPassword = hashedPassword
		db.Create(&admin)
		logger.Info("seeded admin user", zap.String("username", "admin"))
	}

	seedReferenceContent()
	ensureUploadBase()
}

// seedReferenceContent populates the read-only tips/diseases/news tables so
// the public listings serve data out of the box. Idempotent.
func seedReferenceContent() {
	var cnt int64
	db.Model(&models.Tip{}).Count(&cnt)
	if cnt == 0 {
		db.Create(&[]models.Tip{
			{CropName: "Maize", CropTips: "Sow after the last frost; side-dress nitrogen at the V6 stage."},
			{CropName: "Wheat", CropTips: "Rotate with legumes and scout for rust weekly after tillering."},
			{CropName: "Sugar beet", CropTips: "Keep the first six weeks weed-free; beets compete poorly early."},
		})
	}
	db.Model(&models.Disease{}).Count(&cnt)
	if cnt == 0 {
		db.Create(&[]models.Disease{
			{DiseaseName: "Northern leaf blight", Cure: "Resistant hybrids and a single fungicide pass at tasseling.", Commonness: "common"},
			{DiseaseName: "Stripe rust", Cure: "Triazole fungicide at first pustules; avoid dense early sowing.", Commonness: "common"},
			{DiseaseName: "Cercospora leaf spot", Cure: "Alternate fungicide groups; bury infected residue after harvest.", Commonness: "occasional"},
		})
	}
	db.Model(&models.News{}).Count(&cnt)
	if cnt == 0 {
		db.Create(&[]models.News{
			{Title: "Field scouting season opens", Subtitle: "What to look for this spring", Content: "Early detection of leaf disease remains the cheapest intervention available to growers.", AuthorName: "Editorial", Timestamp: time.Now()},
		})
	}
}

// ensureUploadBase creates the base uploads directory.
func ensureUploadBase() {
	base := uploadBaseDir()
	if err := os.MkdirAll(base, 0755); err != nil {
		logger.Warn("failed to create upload base dir", zap.String("dir", base), zap.Error(err))
	}
}

// uploadBaseDir returns the base directory for stored images.
func uploadBaseDir() string {
	if cfg != nil && cfg.UploadBase != "" {
		return cfg.UploadBase
	}
	return "uploads"
}

package main

import (
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"time"

	"agroscan/models"

	"github.com/gin-gonic/gin"
)

type historyItem struct {
	ImageID           uint      `json:"image_id"`
	Username          string    `json:"username"`
	Summary           string    `json:"summary"`
	ModelChosen       string    `json:"model_chosen"`
	CropName          string    `json:"crop_name"`
	ProcessedImageURL *string   `json:"processed_image_url"`
	CreatedAt         time.Time `json:"created_at"`
}

// historyHandler lists classification records newest first. Admins see every
// record; everyone else only their own.
func historyHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	q := db.Preload("User")
	if !isAdminContext(c) {
		q = q.Where("user_id = ?", user.ID)
	}
	var recs []models.ImageRecord
	if err := q.Order("created_at desc").Find(&recs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	items := make([]historyItem, 0, len(recs))
	for _, rec := range recs {
		username := "Unknown"
		if rec.User != nil {
			username = rec.User.Username
		}
		items = append(items, historyItem{
			ImageID:           rec.ID,
			Username:          username,
			Summary:           rec.Summary,
			ModelChosen:       rec.ModelChosen,
			CropName:          rec.CropName,
			ProcessedImageURL: mediaURL(c, rec.ProcessedImage),
			CreatedAt:         rec.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, items)
}

// mediaURL resolves a stored relative path against the /media mount, absolute
// to the requesting host. Empty paths resolve to nil.
func mediaURL(c *gin.Context, rel string) *string {
	if rel == "" {
		return nil
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	u := fmt.Sprintf("%s://%s%s", scheme, c.Request.Host, path.Join("/media", filepath.ToSlash(rel)))
	return &u
}

// deleteImageHandler removes a classification record by id. Deleting twice
// yields success once, then 404.
func deleteImageHandler(c *gin.Context) {
	var req struct {
		ImageID *uint `json:"image_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
		return
	}
	if req.ImageID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image_id provided"})
		return
	}
	res := db.Delete(&models.ImageRecord{}, *req.ImageID)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Image %d not found", *req.ImageID)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Image %d deleted successfully", *req.ImageID)})
}

package main

import (
	"net/http"
	"time"

	"agroscan/models"

	"github.com/gin-gonic/gin"
)

// Read-only listings of admin-maintained reference content.

func tipsHandler(c *gin.Context) {
	var tips []struct {
		CropName string `json:"crop_name"`
		CropTips string `json:"crop_tips"`
	}
	if err := db.Model(&models.Tip{}).Select("crop_name", "crop_tips").Find(&tips).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tips": tips})
}

func diseasesHandler(c *gin.Context) {
	var diseases []struct {
		DiseaseName string `json:"disease_name"`
		Cure        string `json:"cure"`
		Commonness  string `json:"commonness"`
	}
	if err := db.Model(&models.Disease{}).Select("disease_name", "cure", "commonness").Find(&diseases).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"diseases": diseases})
}

func newsHandler(c *gin.Context) {
	var news []struct {
		Title      string    `json:"title"`
		Subtitle   string    `json:"subtitle"`
		Content    string    `json:"content"`
		AuthorName string    `json:"author_name"`
		Timestamp  time.Time `json:"timestamp"`
	}
	if err := db.Model(&models.News{}).Select("title", "subtitle", "content", "author_name", "timestamp").Find(&news).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"news": news})
}

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"agroscan/models"
)

func seedRecord(t *testing.T, userID uint, crop string, created time.Time) models.ImageRecord {
	t.Helper()
	uid := userID
	rec := models.ImageRecord{
		UserID:      &uid,
		ModelChosen: "resnet18",
		CropName:    crop,
		Summary:     crop + " summary",
		CreatedAt:   created,
	}
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("seed record: %v", err)
	}
	return rec
}

func TestHistoryVisibility(t *testing.T) {
	r := setupTestApp(t)
	alice, aliceToken := createTestUser(t, "alice", models.RoleUser)
	bob, _ := createTestUser(t, "bob", models.RoleUser)
	_, adminToken := createTestUser(t, "root", models.RoleAdministrator)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedRecord(t, alice.ID, "Maize", base)
	seedRecord(t, bob.ID, "Wheat", base.Add(time.Minute))
	seedRecord(t, alice.ID, "Soybean", base.Add(2*time.Minute))

	// regular user only sees their own records
	resp := performRequest(r, http.MethodGet, "/api/history", nil, aliceToken, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	var items []historyItem
	if err := json.Unmarshal(resp.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("alice sees %d records, want 2", len(items))
	}
	for _, it := range items {
		if it.Username != "alice" {
			t.Errorf("alice sees record owned by %q", it.Username)
		}
	}

	// admin sees everything, newest first
	resp = performRequest(r, http.MethodGet, "/api/history", nil, adminToken, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	items = items[:0]
	if err := json.Unmarshal(resp.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("admin sees %d records, want 3", len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i].CreatedAt.After(items[i-1].CreatedAt) {
			t.Errorf("history not newest first at index %d", i)
		}
	}
	if items[0].CropName != "Soybean" {
		t.Errorf("newest record is %q, want Soybean", items[0].CropName)
	}
}

func TestHistoryEmpty(t *testing.T) {
	r := setupTestApp(t)
	_, token := createTestUser(t, "carol", models.RoleUser)
	resp := performRequest(r, http.MethodGet, "/api/history", nil, token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	if body := strings.TrimSpace(resp.Body.String()); body != "[]" {
		t.Errorf("empty history should encode as [], got %s", body)
	}
}

func TestDeleteRecord(t *testing.T) {
	r := setupTestApp(t)
	alice, _ := createTestUser(t, "alice", models.RoleUser)
	rec := seedRecord(t, alice.ID, "Maize", time.Now())

	payload := fmt.Sprintf(`{"image_id": %d}`, rec.ID)
	resp := performRequest(r, http.MethodDelete, "/api/delete", strings.NewReader(payload), "", "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	if out := decodeJSON(t, resp); out["message"] != fmt.Sprintf("Image %d deleted successfully", rec.ID) {
		t.Errorf("message=%v", out["message"])
	}

	// second delete of the same id is a 404, not an error
	resp = performRequest(r, http.MethodDelete, "/api/delete", strings.NewReader(payload), "", "application/json")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("second delete status=%d body=%s", resp.Code, resp.Body.String())
	}
	if out := decodeJSON(t, resp); out["error"] != fmt.Sprintf("Image %d not found", rec.ID) {
		t.Errorf("error=%v", out["error"])
	}
}

func TestDeleteValidation(t *testing.T) {
	r := setupTestApp(t)

	resp := performRequest(r, http.MethodDelete, "/api/delete", strings.NewReader("{broken"), "", "application/json")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	if out := decodeJSON(t, resp); out["error"] != "Invalid JSON format" {
		t.Errorf("error=%v", out["error"])
	}

	resp = performRequest(r, http.MethodDelete, "/api/delete", strings.NewReader("{}"), "", "application/json")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	if out := decodeJSON(t, resp); out["error"] != "No image_id provided" {
		t.Errorf("error=%v", out["error"])
	}

	resp = performRequest(r, http.MethodDelete, "/api/delete", strings.NewReader(`{"image_id": 999999}`), "", "application/json")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	if out := decodeJSON(t, resp); out["error"] != "Image 999999 not found" {
		t.Errorf("error=%v", out["error"])
	}
}

func TestMediaURL(t *testing.T) {
	r := setupTestApp(t)
	alice, token := createTestUser(t, "alice", models.RoleUser)
	uid := alice.ID
	rec := models.ImageRecord{
		UserID:         &uid,
		ModelChosen:    "resnet18",
		CropName:       "Maize",
		Summary:        "s",
		ProcessedImage: "records/abc.jpg",
	}
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("seed record: %v", err)
	}

	resp := performRequest(r, http.MethodGet, "/api/history", nil, token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	var items []historyItem
	if err := json.Unmarshal(resp.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].ProcessedImageURL == nil {
		t.Fatalf("processed_image_url missing: %s", resp.Body.String())
	}
	got := *items[0].ProcessedImageURL
	if !strings.HasPrefix(got, "http://") || !strings.HasSuffix(got, "/media/records/abc.jpg") {
		t.Errorf("processed_image_url=%q", got)
	}
}

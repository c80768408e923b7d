package main

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"agroscan/models"
	"agroscan/pkg/infer"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// uploadRequest is the logical upload, whichever physical encoding carried
// it. Field order fixes the validation priority: image, then model, then mode.
type uploadRequest struct {
	Image   []byte `validate:"required"`
	Model   string `validate:"required"`
	Mode    string `validate:"required"`
	ImageID string

	fileName string
}

// uploadMode is the two-way branch the validator produces. Downstream code
// switches on it exhaustively; no third mode can slip through.
type uploadMode int

const (
	modeClassify uploadMode = iota + 1
	modeDetect
)

func parseUploadMode(s string) (uploadMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "classify":
		return modeClassify, true
	case "detect":
		return modeDetect, true
	}
	return 0, false
}

var validate = validator.New()

var (
	errMalformedJSON = errors.New("Invalid JSON format")
	errFileTooLarge  = errors.New("file too large")
)

// inferenceEngine is the per-request handle the upload pipeline holds on the
// model backends. Production uses *infer.Engine; tests substitute a stub.
type inferenceEngine interface {
	Classify(img image.Image, model string) (infer.Classification, error)
	Detect(imageData []byte, model, runTag string) (*infer.Detection, error)
	Close()
}

// openEngine acquires the engine for one request. Swappable in tests.
var openEngine = func() inferenceEngine { return registry.Open() }

type classifyResponse struct {
	Message     string  `json:"message"`
	Mode        string  `json:"mode"`
	ModelChosen string  `json:"model_chosen"`
	ImageID     uint    `json:"image_id"`
	ClassName   string  `json:"class_name"`
	Confidence  float64 `json:"confidence"`
	WikiTitle   string  `json:"wiki_title"`
	WikiSummary string  `json:"wiki_summary"`
	WikiURL     *string `json:"wiki_url"`
}

type detectResponse struct {
	Message     string `json:"message"`
	Mode        string `json:"mode"`
	ModelChosen string `json:"model_chosen"`
	WeedCount   int    `json:"weed_count"`
	CropCount   int    `json:"crop_count"`
}

// uploadImageHandler is the single upload endpoint. It decodes one of two
// request encodings, validates, then dispatches to exactly one of the two
// processing modes. The engine handle is released on every exit path.
func uploadImageHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}

	req, err := decodeUploadRequest(c)
	if err != nil {
		switch {
		case errors.Is(err, errFileTooLarge):
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("file too large (max %dMB)", cfg.MaxUploadMB)})
		case errors.Is(err, errMalformedJSON):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read upload"})
		}
		return
	}

	mode, msg := validateUpload(req)
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	// Acquisition and release bracket both branches: the engine may hold
	// native sessions and must be torn down exactly once per request.
	eng := openEngine()
	defer eng.Close()

	switch mode {
	case modeClassify:
		handleClassify(c, user.ID, req, eng)
	case modeDetect:
		handleDetect(c, req, eng)
	}
}

// decodeUploadRequest normalizes the two physical encodings. JSON and
// multipart are never attempted on the same request; the declared
// content-type alone selects the decoding.
func decodeUploadRequest(c *gin.Context) (*uploadRequest, error) {
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var body struct {
			Model       string `json:"model"`
			Mode        string `json:"mode"`
			ImageID     string `json:"image_id"`
			ImageBase64 string `json:"image_base64"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			return nil, errMalformedJSON
		}
		req := &uploadRequest{Model: body.Model, Mode: body.Mode, ImageID: body.ImageID}
		if body.ImageBase64 != "" {
			raw := body.ImageBase64
			// tolerate a data-URL prefix
			if idx := strings.Index(raw, ","); idx != -1 {
				raw = raw[idx+1:]
			}
			data, err := base64.StdEncoding.DecodeString(raw)
			if err != nil {
				return nil, errMalformedJSON
			}
			if int64(len(data)) > cfg.MaxUploadMB*1024*1024 {
				return nil, errFileTooLarge
			}
			req.Image = data
		}
		return req, nil
	}

	req := &uploadRequest{
		Model:   c.PostForm("model"),
		Mode:    c.PostForm("mode"),
		ImageID: c.PostForm("image_id"),
	}
	file, err := c.FormFile("image")
	if err != nil {
		return req, nil // absence is a validation concern, not a decode error
	}
	if file.Size > cfg.MaxUploadMB*1024*1024 {
		return nil, errFileTooLarge
	}
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	req.Image = data
	req.fileName = file.Filename
	return req, nil
}

// validateUpload checks the three mandatory fields in priority order and
// parses the mode. Returns the parsed mode, or a user-facing message for the
// first violation. Pure; runs before any engine acquisition.
func validateUpload(req *uploadRequest) (uploadMode, string) {
	if err := validate.Struct(req); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			switch ve[0].Field() {
			case "Image":
				return 0, "No image provided"
			case "Model":
				return 0, "No model provided (e.g., 'resnet18' or 'yolov8_m')"
			case "Mode":
				return 0, "No mode provided (must be 'classify' or 'detect')"
			}
		}
		return 0, "invalid upload request"
	}
	mode, ok := parseUploadMode(req.Mode)
	if !ok {
		return 0, "Invalid mode (must be 'classify' or 'detect')"
	}
	return mode, ""
}

// handleClassify runs the persisting branch: a placeholder record is created
// before inference so a row exists even if later steps fail, then finalized
// once with the resolved class and the full enrichment summary.
func handleClassify(c *gin.Context, userID uint, req *uploadRequest, eng inferenceEngine) {
	rec := models.ImageRecord{
		UserID:      &userID,
		ModelChosen: req.Model,
		CropName:    models.PendingCropName,
		Summary:     models.PendingSummary,
		ImagePath:   storeUploadedImage(req),
	}
	if err := db.Create(&rec).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}

	img, err := imaging.Decode(bytes.NewReader(req.Image))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image file"})
		return
	}

	cls, err := eng.Classify(img, req.Model)
	if err != nil {
		// The placeholder record stays in its pending state.
		if errors.Is(err, infer.ErrUnknownModel) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Classification model '%s' not found.", req.Model)})
			return
		}
		logger.Error("classification failed", zap.Uint("record", rec.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "classification failed"})
		return
	}

	sum := wikiClient.Resolve(c.Request.Context(), cls.ClassName)
	wikiTitle := sum.Title
	wikiSummary := sum.Extract
	var wikiURL *string
	if sum.Title == "" {
		wikiTitle = "No data found"
		wikiSummary = "No summary available"
	} else if sum.URL != "" {
		wikiURL = &sum.URL
	}

	// The full summary is persisted; the response carries only a prefix.
	if err := db.Model(&models.ImageRecord{}).Where("id = ?", rec.ID).Updates(map[string]interface{}{
		"crop_name": cls.ClassName,
		"summary":   wikiSummary,
	}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}

	c.JSON(http.StatusOK, classifyResponse{
		Message:     "Image classified successfully",
		Mode:        req.Mode,
		ModelChosen: req.Model,
		ImageID:     rec.ID,
		ClassName:   cls.ClassName,
		Confidence:  cls.Confidence,
		WikiTitle:   wikiTitle,
		WikiSummary: truncateSummary(wikiSummary, 500),
		WikiURL:     wikiURL,
	})
}

/// handleDetect runs the stateless branch: nothing is persisted, whatever the
// outcome. The annotated image is written to scratch under the run tag but is
// not part of the response contract.
func handleDetect(c *gin.Context, req *uploadRequest, eng inferenceEngine) {
	runTag := uuid.NewString()
	det, err := eng.Detect(req.Image, req.Model, runTag)
	if err != nil {
		logger.Error("detection failed", zap.String("model", req.Model), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "detection failed"})
		return
	}
	if det == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Detection model '%s' not found.", req.Model)})
		return
	}
	c.JSON(http.StatusOK, detectResponse{
		Message:     "Image detected successfully",
		Mode:        req.Mode,
		ModelChosen: req.Model,
		WeedCount:   det.WeedCount,
		CropCount:   det.CropCount,
	})
}

// storeUploadedImage keeps a copy of the uploaded bytes under the upload
// base. Best effort: a failed write only costs the stored copy, not the
// classification.
func storeUploadedImage(req *uploadRequest) string {
	ext := strings.ToLower(filepath.Ext(req.fileName))
	if ext == "" {
		ext = ".jpg"
	}
	rel := filepath.Join("records", uuid.NewString()+ext)
	full := filepath.Join(uploadBaseDir(), rel)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		logger.Warn("failed to create records dir", zap.Error(err))
		return ""
	}
	if err := os.WriteFile(full, req.Image, 0644); err != nil {
		logger.Warn("failed to store uploaded image", zap.Error(err))
		return ""
	}
	return rel
}

// truncateSummary takes the first n characters (not bytes) of s.
func truncateSummary(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

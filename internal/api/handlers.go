// handlers.go - HTTP handlers for invoice reading, reconciliation and photo labeling.

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bosocmputer/invoice_labeler/configs"
	"github.com/bosocmputer/invoice_labeler/internal/ai"
	"github.com/bosocmputer/invoice_labeler/internal/common"
	"github.com/bosocmputer/invoice_labeler/internal/processor"
	"github.com/bosocmputer/invoice_labeler/internal/reconcile"
	"github.com/bosocmputer/invoice_labeler/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Label assignment methods recorded on LabelRecord.Method.
const (
	MethodAuto      = "auto"
	MethodOCRLine   = "ocr_line"
	MethodFallback  = "fallback"
	MethodUnknown   = "unknown"
	MethodManual    = "manual"
	MethodCorrected = "corrected"
)

// ErrUnreadableInvoice is the message shown when OCR finds no text.
const ErrUnreadableInvoice = "Invoice unreadable. Please retry or upload PDF."

const requestTimeout = 5 * time.Minute

// LabelStore persists labels, corrections and invoice audit records.
type LabelStore interface {
	SaveLabel(ctx context.Context, rec *storage.LabelRecord) error
	GetLabel(ctx context.Context, id string) (*storage.LabelRecord, error)
	ListLabels(ctx context.Context, limit int64) ([]storage.LabelRecord, error)
	UpdateLabel(ctx context.Context, id string, moved storage.SavedImage, label, objectKey string) (*storage.LabelRecord, error)
	SaveCorrection(ctx context.Context, bad, good string) (*storage.CorrectionRecord, error)
	ListCorrections(ctx context.Context) ([]storage.CorrectionRecord, error)
	SaveInvoice(ctx context.Context, rec *storage.InvoiceRecord) error
}

// ObjectStore keeps a remote copy of dataset images.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error)
}

// Dataset writes images into class folders.
type Dataset interface {
	Save(label string, jpeg []byte) (storage.SavedImage, error)
	Move(relPath, newLabel string) (storage.SavedImage, error)
}

// Config holds the tunables the handlers read on every request.
type Config struct {
	MaxUploadBytes     int64
	Preprocess         bool
	PreprocessMode     processor.PreprocessMode
	MaxImageDimension  int
	AutoLabelThreshold float64
	ReviewThreshold    float64
	UploadDir          string // original invoice uploads are kept here; empty disables
}

// ConfigFromEnv builds a Config from the loaded configs package.
func ConfigFromEnv() Config {
	return Config{
		MaxUploadBytes:     int64(configs.MAX_UPLOAD_MB) << 20,
		Preprocess:         configs.ENABLE_IMAGE_PREPROCESSING,
		PreprocessMode:     processor.ParsePreprocessMode(configs.PREPROCESS_MODE),
		MaxImageDimension:  configs.MAX_IMAGE_DIMENSION,
		AutoLabelThreshold: configs.AUTO_LABEL_THRESHOLD,
		ReviewThreshold:    configs.REVIEW_CONFIDENCE_THRESHOLD,
		UploadDir:          configs.UPLOAD_DIR,
	}
}

// Handler serves the labeler API.
type Handler struct {
	ocr        ai.OCRProvider
	structurer ai.Structurer
	store      LabelStore
	objects    ObjectStore // nil when the object store is disabled
	dataset    Dataset
	sessions   *storage.SessionCache
	cfg        Config
}

// NewHandler wires the handler. objects may be nil.
func NewHandler(ocr ai.OCRProvider, structurer ai.Structurer, store LabelStore, objects ObjectStore, dataset Dataset, sessions *storage.SessionCache, cfg Config) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	return &Handler{
		ocr:        ocr,
		structurer: structurer,
		store:      store,
		objects:    objects,
		dataset:    dataset,
		sessions:   sessions,
		cfg:        cfg,
	}
}

// RegisterRoutes mounts every endpoint on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", HealthHandler)
	r.GET("/ping", PingHandler)

	v1 := r.Group("/api/v1", h.limitBody)
	v1.POST("/invoice", h.InvoiceHandler)
	v1.POST("/reconcile", h.ReconcileHandler)
	v1.POST("/scan", h.ScanHandler)
	v1.POST("/confirm", h.ConfirmHandler)
	v1.GET("/labels", h.ListLabelsHandler)
	v1.POST("/labels/:id/correct", h.CorrectLabelHandler)
	v1.GET("/corrections", h.ListCorrectionsHandler)
	v1.POST("/corrections", h.AddCorrectionHandler)
	v1.GET("/preview", h.PreviewHandler)
}

// HealthHandler reports liveness.
func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "invoice-labeler",
		"version": "1.0.0",
	})
}

// PingHandler answers {"message":"pong"}.
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

func respondError(c *gin.Context, status int, detail string, reqCtx *common.RequestContext) {
	body := gin.H{"detail": detail}
	if reqCtx != nil {
		body["request_id"] = reqCtx.RequestID
	}
	c.JSON(status, body)
}

// respondProviderError maps OCR/LLM failures to a status and a readable detail.
func respondProviderError(c *gin.Context, err error, reqCtx *common.RequestContext) {
	var pe *ai.ProviderError
	if errors.As(err, &pe) {
		c.JSON(pe.HTTPStatus(), gin.H{
			"detail":     pe.Suggestion(),
			"error_type": pe.Category,
			"request_id": reqCtx.RequestID,
		})
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		respondError(c, http.StatusGatewayTimeout, "Processing timeout. Please try again with a clearer photo.", reqCtx)
		return
	}
	respondError(c, http.StatusBadGateway, "OCR processing failed: "+err.Error(), reqCtx)
}

type upload struct {
	Name     string
	Data     []byte
	MimeType string
}

// limitBody caps request bodies at the upload limit plus room for form fields.
func (h *Handler) limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadBytes+1<<20)
	c.Next()
}

// readUpload reads the multipart "file" field.
func (h *Handler) readUpload(c *gin.Context) (*upload, int, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds %d MB", h.cfg.MaxUploadBytes>>20)
		}
		return nil, http.StatusBadRequest, errors.New("file is required")
	}
	if fh.Size > h.cfg.MaxUploadBytes {
		return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds %d MB", h.cfg.MaxUploadBytes>>20)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("cannot open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("cannot read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, http.StatusBadRequest, errors.New("file is empty")
	}

	return &upload{Name: fh.Filename, Data: data, MimeType: processor.DetectMIME(data, fh.Filename)}, 0, nil
}

// keepUpload writes the original upload to <UploadDir>/<id><ext> and returns
// the path, or "" when uploads are not kept.
func (h *Handler) keepUpload(id string, up *upload) (string, error) {
	if h.cfg.UploadDir == "" {
		return "", nil
	}
	ext := strings.ToLower(filepath.Ext(up.Name))
	if ext == "" {
		ext = ".bin"
	}
	if err := os.MkdirAll(h.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}
	path := filepath.Join(h.cfg.UploadDir, id+ext)
	if err := os.WriteFile(path, up.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return path, nil
}

func sessionIDFrom(c *gin.Context) string {
	if id := strings.TrimSpace(c.PostForm("session_id")); id != "" {
		return id
	}
	return uuid.NewString()
}

// InvoiceHandler reads an invoice, structures it and returns the reconciled
// candidate list. The candidates become the session's labeling vocabulary.
func (h *Handler) InvoiceHandler(c *gin.Context) {
	sessionID := sessionIDFrom(c)
	reqCtx := common.NewRequestContext(sessionID)

	up, status, err := h.readUpload(c)
	if err != nil {
		respondError(c, status, err.Error(), reqCtx)
		return
	}
	reqCtx.LogInfo("invoice upload %s (%d bytes, %s)", up.Name, len(up.Data), up.MimeType)

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	image, mimeType := h.preprocess(up, processor.HighQualityMode, reqCtx)

	// Step 1: OCR
	reqCtx.StartStep("ocr")
	ocr, usage, err := h.ocr.ReadInvoice(ctx, image, mimeType, reqCtx)
	if err != nil {
		reqCtx.EndStep(common.StatusFailed, usage, err)
		respondProviderError(c, err, reqCtx)
		return
	}
	reqCtx.EndStep(common.StatusSuccess, usage, nil)

	texts := ocr.Texts()
	if len(texts) == 0 {
		respondError(c, http.StatusUnprocessableEntity, ErrUnreadableInvoice, reqCtx)
		return
	}

	// Step 2: layout heuristics
	reqCtx.StartStep("normalize")
	normalized := processor.NormalizeOCRText(texts)
	ocrRaw := processor.BuildOCRRaw(texts, ocr.Engine)
	rows := processor.StructureRows(ocr.Lines, h.cfg.ReviewThreshold)
	reqCtx.EndStep(common.StatusSuccess, nil, nil)

	// Step 3: LLM structuring, best effort
	var structured reconcile.StructuredResult
	if normalized != "" && h.structurer != nil {
		reqCtx.StartStep("structure")
		raw, usage, err := h.structurer.StructureInvoice(ctx, normalized, reqCtx)
		if err != nil {
			reqCtx.EndStep(common.StatusFailed, usage, err)
			reqCtx.LogWarning("structuring skipped: %v", err)
		} else {
			reqCtx.EndStep(common.StatusSuccess, usage, nil)
			structured = reconcile.EncodedStructured(raw)
		}
	}

	// Step 4: reconcile
	payload := reconcile.Payload{
		OcrLines:       ocr.Lines,
		NormalizedText: normalized,
		Structured:     structured,
		OcrRaw:         ocrRaw,
	}
	result := reconcile.Reconcile(payload)

	invoiceID := uuid.NewString()
	h.sessions.Put(sessionID, storage.SessionCandidates{
		Items:     result.Items,
		Source:    string(result.ItemsSource),
		InvoiceID: invoiceID,
	})

	rec := &storage.InvoiceRecord{
		ID:             invoiceID,
		SessionID:      sessionID,
		FileName:       up.Name,
		Engine:         ocr.Engine,
		Lines:          texts,
		NormalizedText: normalized,
		Items:          result.Items,
		ItemsSource:    string(result.ItemsSource),
	}
	if structured.Kind == reconcile.StructuredEncoded {
		rec.Structured = structured.Encoded
	}
	if path, err := h.keepUpload(invoiceID, up); err != nil {
		reqCtx.LogWarning("original upload not kept: %v", err)
	} else {
		rec.UploadPath = path
	}
	if err := h.store.SaveInvoice(ctx, rec); err != nil {
		reqCtx.LogWarning("invoice record not saved: %v", err)
	}

	summary := reqCtx.Summary()
	c.JSON(http.StatusOK, gin.H{
		"ocr_lines":          payload.OcrLines,
		"normalized_text":    payload.NormalizedText,
		"structured":         payload.Structured,
		"ocr_raw":            payload.OcrRaw,
		"rows":               rows,
		"items_for_dropdown": result.Items,
		"items_source":       result.ItemsSource,
		"blocks":             result.Blocks,
		"html":               result.HTML,
		"options_html":       result.OptionsHTML,
		"session_id":         sessionID,
		"invoice_id":         invoiceID,
		"metadata": gin.H{
			"request_id":   reqCtx.RequestID,
			"processed_at": time.Now().Format(time.RFC3339),
			"engine":       ocr.Engine,
			"model":        ocr.Model,
			"is_partial":   ocr.IsPartial,
			"warning":      ocr.Warning,
			"duration_sec": summary.DurationSec,
			"steps_ms":     summary.Steps,
			"token_usage":  summary.Tokens,
		},
	})
}

// ReconcileHandler reconciles a raw upstream payload posted as JSON.
func (h *Handler) ReconcileHandler(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, h.cfg.MaxUploadBytes))
	if err != nil {
		respondError(c, http.StatusBadRequest, "cannot read body", nil)
		return
	}

	payload, err := reconcile.DecodePayload(body)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	c.JSON(http.StatusOK, reconcile.Reconcile(payload))
}

// ScanHandler labels a product photo from its printed text and the
// session's invoice candidates, then stores it in the dataset.
func (h *Handler) ScanHandler(c *gin.Context) {
	sessionID := strings.TrimSpace(c.PostForm("session_id"))
	fallbackLabel := strings.TrimSpace(c.PostForm("fallback_label"))
	reqCtx := common.NewRequestContext(sessionID)

	up, status, err := h.readUpload(c)
	if err != nil {
		respondError(c, status, err.Error(), reqCtx)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	jpeg, err := processor.EncodeDatasetJPEG(up.Data)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Scan processing failed: image cannot be decoded", reqCtx)
		return
	}

	// Step 1: read label text; failure degrades to fallback labeling
	image, mimeType := h.preprocess(up, processor.FastMode, reqCtx)
	reqCtx.StartStep("read_label")
	lines, usage, err := h.ocr.ReadLabel(ctx, image, mimeType, reqCtx)
	if err != nil {
		reqCtx.EndStep(common.StatusFailed, usage, err)
		lines = nil
	} else {
		reqCtx.EndStep(common.StatusSuccess, usage, nil)
	}

	// Step 2: match
	corrections := h.corrections(ctx, reqCtx)
	ocrText := processor.ApplyCorrections(strings.Join(lines, " "), corrections)

	var candidates []string
	if sessionID != "" {
		if cached, ok := h.sessions.Get(sessionID); ok {
			candidates = cached.Items
		}
	}
	match := processor.MatchLabel(ocrText, candidates, h.cfg.AutoLabelThreshold)

	label, method := chooseLabel(match, lines, corrections, fallbackLabel)
	reqCtx.LogInfo("scan %s -> %q (%s, score %.3f)", up.Name, label, method, match.Score)

	// Step 3: store
	rec, note, err := h.storeImage(ctx, jpeg, label, reqCtx)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Scan processing failed: "+err.Error(), reqCtx)
		return
	}
	rec.SessionID = sessionID
	rec.OCRText = ocrText
	rec.Confidence = match.Score
	rec.Method = method
	rec.NeedsReview = !match.Auto
	rec.Suggestions = match.Suggestions

	if err := h.store.SaveLabel(ctx, rec); err != nil {
		respondError(c, http.StatusInternalServerError, "Scan processing failed: "+err.Error(), reqCtx)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":            rec.ID,
		"ocr_label":     label,
		"ocr_text":      ocrText,
		"ocr_lines":     lines,
		"saved_relpath": rec.RelPath,
		"object_key":    rec.ObjectKey,
		"confidence":    match.Score,
		"method":        method,
		"auto":          match.Auto,
		"needs_review":  rec.NeedsReview,
		"suggestions":   match.Suggestions,
		"note":          note,
		"session_id":    sessionID,
		"request_id":    reqCtx.RequestID,
	})
}

// chooseLabel: auto match, else first OCR line, else the caller's fallback,
// else unknown.
func chooseLabel(match processor.LabelMatchResult, lines []string, corrections []processor.Correction, fallback string) (string, string) {
	if match.Auto {
		return match.Label, MethodAuto
	}
	for _, l := range lines {
		if l = strings.TrimSpace(processor.ApplyCorrections(l, corrections)); l != "" {
			return l, MethodOCRLine
		}
	}
	if fallback != "" {
		return fallback, MethodFallback
	}
	return processor.UnknownLabel, MethodUnknown
}

// ConfirmHandler stores a photo under a label chosen by the user.
func (h *Handler) ConfirmHandler(c *gin.Context) {
	sessionID := strings.TrimSpace(c.PostForm("session_id"))
	label := strings.TrimSpace(c.PostForm("label"))
	reqCtx := common.NewRequestContext(sessionID)

	if label == "" {
		respondError(c, http.StatusBadRequest, "label is required", reqCtx)
		return
	}

	up, status, err := h.readUpload(c)
	if err != nil {
		respondError(c, status, err.Error(), reqCtx)
		return
	}

	jpeg, err := processor.EncodeDatasetJPEG(up.Data)
	if err != nil {
		respondError(c, http.StatusBadRequest, "image cannot be decoded", reqCtx)
		return
	}

	ctx := c.Request.Context()
	rec, note, err := h.storeImage(ctx, jpeg, label, reqCtx)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error(), reqCtx)
		return
	}
	rec.SessionID = sessionID
	rec.Confidence = 1
	rec.Method = MethodManual
	rec.Reviewed = true

	if err := h.store.SaveLabel(ctx, rec); err != nil {
		respondError(c, http.StatusInternalServerError, err.Error(), reqCtx)
		return
	}

	c.JSON(http.StatusOK, gin.H{"label": rec, "note": note, "request_id": reqCtx.RequestID})
}

type correctLabelRequest struct {
	Label string `json:"label" binding:"required"`
}

// CorrectLabelHandler moves a labeled photo to a corrected class.
func (h *Handler) CorrectLabelHandler(c *gin.Context) {
	reqCtx := common.NewRequestContext("")
	id := c.Param("id")

	var req correctLabelRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Label) == "" {
		respondError(c, http.StatusBadRequest, "label is required", reqCtx)
		return
	}
	label := strings.TrimSpace(req.Label)

	ctx := c.Request.Context()
	rec, err := h.store.GetLabel(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(c, http.StatusNotFound, "label not found", reqCtx)
			return
		}
		respondError(c, http.StatusInternalServerError, err.Error(), reqCtx)
		return
	}

	moved, err := h.dataset.Move(rec.RelPath, label)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error(), reqCtx)
		return
	}

	objectKey := ""
	if h.objects != nil {
		objectKey = moved.ObjectKey()
		if data, err := os.ReadFile(moved.FullPath); err != nil {
			reqCtx.LogWarning("object copy skipped: %v", err)
			objectKey = ""
		} else if err := h.objects.Upload(ctx, objectKey, data, "image/jpeg"); err != nil {
			reqCtx.LogWarning("object copy failed: %v", err)
			objectKey = ""
		}
	}

	updated, err := h.store.UpdateLabel(ctx, id, moved, label, objectKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(c, http.StatusNotFound, "label not found", reqCtx)
			return
		}
		respondError(c, http.StatusInternalServerError, err.Error(), reqCtx)
		return
	}

	c.JSON(http.StatusOK, updated)
}

// ListLabelsHandler exports label records, oldest first.
func (h *Handler) ListLabelsHandler(c *gin.Context) {
	var limit int64
	if s := c.Query("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			respondError(c, http.StatusBadRequest, "limit must be a non-negative integer", nil)
			return
		}
		limit = n
	}

	labels, err := h.store.ListLabels(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"labels": labels, "count": len(labels)})
}

type correctionRequest struct {
	Bad  string `json:"bad" binding:"required"`
	Good string `json:"good" binding:"required"`
}

// AddCorrectionHandler stores a bad->good OCR replacement.
func (h *Handler) AddCorrectionHandler(c *gin.Context) {
	var req correctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad and good are required", nil)
		return
	}
	bad, good := strings.TrimSpace(req.Bad), strings.TrimSpace(req.Good)
	if bad == "" || good == "" {
		respondError(c, http.StatusBadRequest, "bad and good are required", nil)
		return
	}

	rec, err := h.store.SaveCorrection(c.Request.Context(), bad, good)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListCorrectionsHandler returns corrections in application order.
func (h *Handler) ListCorrectionsHandler(c *gin.Context) {
	records, err := h.store.ListCorrections(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"corrections": records, "count": len(records)})
}

// PreviewHandler streams a stored dataset image.
func (h *Handler) PreviewHandler(c *gin.Context) {
	if h.objects == nil {
		respondError(c, http.StatusBadRequest, "Object store not configured", nil)
		return
	}
	key := strings.TrimSpace(c.Query("key"))
	if key == "" {
		respondError(c, http.StatusBadRequest, "key is required", nil)
		return
	}

	r, info, err := h.objects.Open(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(c, http.StatusNotFound, "object not found", nil)
			return
		}
		respondError(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	defer r.Close()

	c.DataFromReader(http.StatusOK, info.Size, info.ContentType, r, map[string]string{
		"Cache-Control": "private, max-age=3600",
	})
}

// preprocess enhances the upload for OCR; on failure the original is used.
func (h *Handler) preprocess(up *upload, mode processor.PreprocessMode, reqCtx *common.RequestContext) ([]byte, string) {
	if !h.cfg.Preprocess {
		return up.Data, up.MimeType
	}

	reqCtx.StartStep("preprocess")
	data, mimeType, err := processor.PreprocessImage(up.Data, up.MimeType, mode, h.cfg.MaxImageDimension)
	if err != nil {
		reqCtx.EndStep(common.StatusSkipped, nil, nil)
		reqCtx.LogWarning("preprocessing failed, using original: %v", err)
		return up.Data, up.MimeType
	}
	reqCtx.EndStep(common.StatusSuccess, nil, nil)
	return data, mimeType
}

func (h *Handler) corrections(ctx context.Context, reqCtx *common.RequestContext) []processor.Correction {
	records, err := h.store.ListCorrections(ctx)
	if err != nil {
		reqCtx.LogWarning("corrections unavailable: %v", err)
		return nil
	}
	return storage.ToCorrections(records)
}

// storeImage writes the dataset file and, when enabled, its object copy.
func (h *Handler) storeImage(ctx context.Context, jpeg []byte, label string, reqCtx *common.RequestContext) (*storage.LabelRecord, string, error) {
	saved, err := h.dataset.Save(label, jpeg)
	if err != nil {
		return nil, "", err
	}

	rec := &storage.LabelRecord{
		Label:    label,
		Class:    saved.Class,
		FileName: saved.FileName,
		RelPath:  saved.RelPath,
	}

	note := "Stored locally only"
	if h.objects != nil {
		key := saved.ObjectKey()
		if err := h.objects.Upload(ctx, key, jpeg, "image/jpeg"); err != nil {
			reqCtx.LogWarning("object upload failed: %v", err)
		} else {
			rec.ObjectKey = key
			note = "Uploaded to object store at " + key
		}
	}
	return rec, note, nil
}

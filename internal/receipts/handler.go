package receipts

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/permissions"
	"github.com/eventdesk/backend/pkg/response"
	"github.com/eventdesk/backend/pkg/storage"
)

// Presigner signs direct uploads. *storage.S3 implements it.
type Presigner interface {
	GeneratePresignedUploadURL(ctx context.Context, bucket, key, contentType string, expires time.Duration) (string, error)
	ObjectURL(bucket, key string) string
	ReceiptsBucket() string
	PresignExpire() time.Duration
}

// Gate checks event-scoped permissions.
type Gate interface {
	Allowed(ctx context.Context, actor auth.Actor, eventID uuid.UUID, key permissions.Key) bool
}

// Handler issues receipt upload URLs.
type Handler struct {
	s3     Presigner
	gate   Gate
	logger *zap.Logger
}

// NewHandler creates a receipts handler. s3 may be nil when storage is not configured.
func NewHandler(s3 Presigner, gate Gate, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{s3: s3, gate: gate, logger: logger}
}

// UploadURLRequest is the body for POST /finance/expense/receipt-upload-url.
type UploadURLRequest struct {
	EventID     uuid.UUID `json:"event_id"`
	Filename    string    `json:"filename" binding:"required"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
}

// UploadURLResponse tells the client where to PUT the file and what to store as receipt_url.
type UploadURLResponse struct {
	UploadURL   string `json:"upload_url"`
	ReceiptURL  string `json:"receipt_url"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// UploadURL handles POST /finance/expense/receipt-upload-url.
func (h *Handler) UploadURL(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "receipt uploads are not configured")
		return
	}
	var req UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.EventID == uuid.Nil {
		response.BadRequest(c, "event_id is required")
		return
	}
	if !storage.ValidateReceiptFileType(req.ContentType, req.Filename) {
		response.BadRequest(c, "receipts must be JPEG, PNG, WEBP, HEIC or PDF")
		return
	}
	if req.Size > storage.MaxReceiptFileSize {
		response.BadRequest(c, "receipt exceeds 10MB")
		return
	}
	ctx := c.Request.Context()
	actor := auth.MustActor(c)
	if h.gate != nil && !h.gate.Allowed(ctx, actor, req.EventID, permissions.FinanceLogExpense) {
		response.Forbidden(c, "missing permission "+string(permissions.FinanceLogExpense))
		return
	}

	contentType := req.ContentType
	if _, ok := storage.AllowedReceiptTypes[contentType]; !ok {
		contentType = storage.ContentTypeForFilename(req.Filename)
	}
	key := storage.ReceiptKey(req.EventID, actor.UserID, req.Filename)
	bucket := h.s3.ReceiptsBucket()
	expires := h.s3.PresignExpire()
	url, err := h.s3.GeneratePresignedUploadURL(ctx, bucket, key, contentType, expires)
	if err != nil {
		h.logger.Error("presign receipt upload failed", zap.Error(err))
		response.Internal(c, "failed to create upload url")
		return
	}
	response.OK(c, UploadURLResponse{
		UploadURL:   url,
		ReceiptURL:  h.s3.ObjectURL(bucket, key),
		Key:         key,
		ContentType: contentType,
		ExpiresIn:   int(expires.Seconds()),
	})
}

package exports

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/finance"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/pkg/queue"
	"github.com/eventdesk/backend/pkg/response"
)

// Store persists export records. *Repository implements it.
type Store interface {
	Create(ctx context.Context, e *models.ReportExport) error
	Get(ctx context.Context, id uuid.UUID) (*models.ReportExport, error)
}

// Enqueuer hands jobs to the worker. *queue.Queue implements it.
type Enqueuer interface {
	EnqueueExport(ctx context.Context, payload queue.ExportPayload) error
}

// Presigner signs download URLs for finished exports. *storage.S3 implements it.
type Presigner interface {
	GeneratePresignedDownloadURL(ctx context.Context, bucket, key, filename string, expires time.Duration) (string, error)
	ExportsBucket() string
	PresignExpire() time.Duration
}

// Handler handles async report export endpoints.
type Handler struct {
	store  Store
	queue  Enqueuer
	s3     Presigner
	logger *zap.Logger
}

// NewHandler creates an exports handler. q and s3 may be nil when Redis or
// S3 is not configured; the endpoints then answer 503.
func NewHandler(store Store, q Enqueuer, s3 Presigner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, queue: q, s3: s3, logger: logger}
}

// CreateRequest is the body for POST /finance/reports/exports.
type CreateRequest struct {
	Type string `json:"type"`
}

// ExportResponse is an export with its download link once completed.
type ExportResponse struct {
	*models.ReportExport
	DownloadURL string `json:"download_url,omitempty"`
}

// Create handles POST /finance/reports/exports.
func (h *Handler) Create(c *gin.Context) {
	if h.queue == nil || h.s3 == nil {
		response.ServiceUnavailable(c, "report exports are not configured")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Type == "" {
		req.Type = string(finance.ReportEventWise)
	}
	kind, err := finance.ParseReportKind(req.Type)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	e := &models.ReportExport{
		ID:          uuid.New(),
		Kind:        string(kind),
		Status:      models.ExportStatusQueued,
		RequestedBy: auth.MustActor(c).UserID,
		CreatedAt:   time.Now().UTC(),
	}
	ctx := c.Request.Context()
	if err := h.store.Create(ctx, e); err != nil {
		h.logger.Error("create export failed", zap.Error(err))
		response.Internal(c, "failed to create export")
		return
	}
	if err := h.queue.EnqueueExport(ctx, queue.ExportPayload{ExportID: e.ID, Kind: e.Kind}); err != nil {
		h.logger.Error("enqueue export failed", zap.Error(err), zap.String("export_id", e.ID.String()))
		response.ServiceUnavailable(c, "failed to queue export")
		return
	}
	response.Accepted(c, ExportResponse{ReportExport: e})
}

// Get handles GET /finance/reports/exports/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid export id")
		return
	}
	ctx := c.Request.Context()
	e, err := h.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		h.logger.Error("get export failed", zap.Error(err))
		response.Internal(c, "failed to get export")
		return
	}
	out := ExportResponse{ReportExport: e}
	if e.Status == models.ExportStatusCompleted && e.S3Key != "" && h.s3 != nil {
		filename := finance.ReportKind(e.Kind).Filename(e.CreatedAt)
		url, err := h.s3.GeneratePresignedDownloadURL(ctx, h.s3.ExportsBucket(), e.S3Key, filename, h.s3.PresignExpire())
		if err != nil {
			h.logger.Error("presign export download failed", zap.Error(err))
			response.Internal(c, "failed to sign download url")
			return
		}
		out.DownloadURL = url
	}
	response.OK(c, out)
}

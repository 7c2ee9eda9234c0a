package handler

import (
	"log/slog"

	"github.com/cedarshop/indexing-be/internal/api/storage"
	"github.com/cedarshop/indexing-be/internal/catalog"
	"github.com/cedarshop/indexing-be/internal/sitemap"
	"github.com/cedarshop/indexing-be/internal/worker"
	"github.com/cedarshop/indexing-be/shared/rabbitmq"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Storage      *storage.Storage
	Processor    *worker.Processor
	Scheduler    *catalog.Scheduler
	Extractor    *sitemap.Extractor
	RabbitClient *rabbitmq.Client
}

// QueueHandler handles queue-related HTTP requests
type QueueHandler struct {
	logger       *slog.Logger
	storage      *storage.Storage
	processor    *worker.Processor
	scheduler    *catalog.Scheduler
	extractor    *sitemap.Extractor
	rabbitClient *rabbitmq.Client
}

// NewQueueHandler creates a new QueueHandler instance
func NewQueueHandler(deps *Dependencies) *QueueHandler {
	return &QueueHandler{
		logger:       deps.Logger,
		storage:      deps.Storage,
		processor:    deps.Processor,
		scheduler:    deps.Scheduler,
		extractor:    deps.Extractor,
		rabbitClient: deps.RabbitClient,
	}
}

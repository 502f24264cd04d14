package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pr-reaction-bridge/internal/log"
	"pr-reaction-bridge/internal/models"
	"pr-reaction-bridge/internal/services"
)

// RecordsHandler exposes the tracking records for inspection.
type RecordsHandler struct {
	store services.TrackingStore
}

// NewRecordsHandler creates a handler listing the records in store.
func NewRecordsHandler(store services.TrackingStore) *RecordsHandler {
	return &RecordsHandler{store: store}
}

// List returns every tracking record, or only those for ?url= when given.
func (h *RecordsHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		records []*models.TrackingRecord
		err     error
	)
	if url := c.Query("url"); url != "" {
		records, err = h.store.FindByURL(ctx, url)
	} else {
		records, err = h.store.ListAll(ctx)
	}
	if err != nil {
		log.Error(ctx, "Failed to load tracking records", "error", err)
		respondError(c, http.StatusInternalServerError, "failed to load tracking records")
		return
	}

	c.JSON(http.StatusOK, records)
}

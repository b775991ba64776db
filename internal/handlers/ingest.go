package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/codequarry/codequarry-backend/internal/services"
)

type IngestHandler struct {
	scheduler services.Scheduler
}

func NewIngestHandler(scheduler services.Scheduler) *IngestHandler {
	return &IngestHandler{scheduler: scheduler}
}

func (ih *IngestHandler) Submit(c *gin.Context) {
	var req struct {
		UserID   string `json:"user_id"`
		Language string `json:"language"`
		Topic    string `json:"topic"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.UserID == "" || req.Language == "" || req.Topic == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id, language and topic are required"})
		return
	}

	result, err := ih.scheduler.Submit(c.Request.Context(), req.UserID, req.Language, req.Topic)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": string(result)})
}

func (ih *IngestHandler) Status(c *gin.Context) {
	language := c.Query("language")
	topic := c.Query("topic")
	if language == "" || topic == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "language and topic query params are required"})
		return
	}

	status, err := ih.scheduler.Status(c.Request.Context(), language, topic)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "topic not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tingly-dev/nodepack/internal/obs"
)

// LogsResponse represents the API response for logs
type LogsResponse struct {
	Total int             `json:"total"`
	Logs  []obs.LogRecord `json:"logs"`
}

// GetLogs retrieves request logs with optional filtering
// Query parameters:
//   - limit: maximum number of entries to return (default: 100)
//   - level: minimum severity (debug, info, warn, error)
//   - since: RFC3339 timestamp to filter entries after this time
func (s *Server) GetLogs(c *gin.Context) {
	if s.memoryLogMW == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "Memory log middleware not available",
		})
		return
	}
	hook := s.memoryLogMW.Hook()

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	var records []obs.LogRecord
	switch {
	case c.Query("level") != "":
		level, err := logrus.ParseLevel(c.Query("level"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid log level"})
			return
		}
		records = hook.AtLeast(level)
	case c.Query("since") != "":
		since, err := time.Parse(time.RFC3339, c.Query("since"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "Invalid since timestamp, use RFC3339 format",
			})
			return
		}
		records = hook.Since(since)
	default:
		records = hook.Latest(limit)
	}

	if len(records) > limit {
		records = records[len(records)-limit:]
	}
	c.JSON(http.StatusOK, LogsResponse{
		Total: len(records),
		Logs:  records,
	})
}

// ClearLogs clears all request log entries
func (s *Server) ClearLogs(c *gin.Context) {
	if s.memoryLogMW == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "Memory log middleware not available",
		})
		return
	}

	s.memoryLogMW.Hook().Clear()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Logs cleared successfully",
	})
}

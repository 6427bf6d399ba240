package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const incrementFailedMessage = "Failed to update counter due to a database error."

func (s *Server) incrementCount(c *gin.Context) {
	n, err := s.counter.Up(c.Request.Context())
	if err != nil {
		s.logger.Error("increment failed", zap.Error(err), zap.String("requestID", c.GetString(requestIDKey)))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": incrementFailedMessage,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"newCount": n,
	})
}

// getCount answers a failed read with count 0; only the status tells it apart from no clicks.
func (s *Server) getCount(c *gin.Context) {
	n, err := s.counter.Get(c.Request.Context())
	if err != nil {
		s.logger.Error("read failed", zap.Error(err), zap.String("requestID", c.GetString(requestIDKey)))
		c.JSON(http.StatusInternalServerError, gin.H{"count": 0})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": n})
}

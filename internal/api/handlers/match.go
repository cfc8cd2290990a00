package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tdkkdt/EvoS-sub002/internal/models"
	"github.com/tdkkdt/EvoS-sub002/internal/service"
	"github.com/tdkkdt/EvoS-sub002/pkg/logger"
)

type MatchGetter interface {
	GetMatch(ctx context.Context, id string) (*models.Match, error)
}

type MatchHandler struct {
	matchService MatchGetter
}

func NewMatchHandler(matchService MatchGetter) *MatchHandler {
	return &MatchHandler{
		matchService: matchService,
	}
}

// GetMatch 매칭 결과 조회
func (h *MatchHandler) GetMatch(c *gin.Context) {
	match, err := h.matchService.GetMatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrMatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Match not found",
			})
			return
		}

		logger.Error("Failed to get match", "id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get match",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"match": match,
	})
}

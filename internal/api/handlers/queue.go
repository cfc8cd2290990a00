package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tdkkdt/EvoS-sub002/internal/models"
	"github.com/tdkkdt/EvoS-sub002/internal/service"
	"github.com/tdkkdt/EvoS-sub002/pkg/logger"
	"github.com/tdkkdt/EvoS-sub002/pkg/matchmaker"
)

const (
	defaultPreviewLimit = 20
	maxPreviewLimit     = 200
)

// QueueService is what the queue endpoints need from the matchmaking driver.
type QueueService interface {
	EnqueueGroup(ctx context.Context, mode string, accountIDs []string) (*models.QueuedGroup, error)
	CancelGroup(ctx context.Context, groupID string) error
	GetGroup(ctx context.Context, groupID string) (*models.QueuedGroup, error)
	ListWaiting(ctx context.Context, mode string) ([]models.QueuedGroup, error)
	Preview(ctx context.Context, mode string, limit int) ([]matchmaker.Match, error)
	Modes() []matchmaker.Mode
}

type QueueHandler struct {
	queueService QueueService
}

func NewQueueHandler(queueService QueueService) *QueueHandler {
	return &QueueHandler{
		queueService: queueService,
	}
}

type EnqueueRequest struct {
	Mode       string   `json:"mode" binding:"required"`
	AccountIDs []string `json:"accountIds" binding:"required,min=1"`
}

// EnqueueGroup 파티를 매칭 큐에 등록
func (h *QueueHandler) EnqueueGroup(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	group, err := h.queueService.EnqueueGroup(c.Request.Context(), req.Mode, req.AccountIDs)
	if err != nil {
		writeQueueError(c, err, "Failed to enqueue group")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"group": group,
	})
}

// CancelGroup 큐에서 파티 제거
func (h *QueueHandler) CancelGroup(c *gin.Context) {
	groupID := c.Param("groupId")

	if err := h.queueService.CancelGroup(c.Request.Context(), groupID); err != nil {
		writeQueueError(c, err, "Failed to cancel group")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"groupId": groupID,
		"status":  models.QueueStatusCancelled,
	})
}

// GetGroup 파티 상태 조회
func (h *QueueHandler) GetGroup(c *gin.Context) {
	group, err := h.queueService.GetGroup(c.Request.Context(), c.Param("groupId"))
	if err != nil {
		writeQueueError(c, err, "Failed to get group")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"group": group,
	})
}

// ListWaiting 모드별 대기 중인 파티 목록
func (h *QueueHandler) ListWaiting(c *gin.Context) {
	mode := c.Param("mode")

	groups, err := h.queueService.ListWaiting(c.Request.Context(), mode)
	if err != nil {
		writeQueueError(c, err, "Failed to list queue")
		return
	}
	if groups == nil {
		groups = []models.QueuedGroup{}
	}

	players := 0
	for _, g := range groups {
		players += len(g.MemberAccountIDs)
	}

	c.JSON(http.StatusOK, gin.H{
		"mode":    mode,
		"groups":  groups,
		"total":   len(groups),
		"players": players,
	})
}

// ListModes 등록된 게임 모드 목록
func (h *QueueHandler) ListModes(c *gin.Context) {
	modes := h.queueService.Modes()

	c.JSON(http.StatusOK, gin.H{
		"modes": modes,
		"total": len(modes),
	})
}

type GroupView struct {
	ID               string   `json:"id"`
	MemberAccountIDs []string `json:"memberAccountIds"`
	WaitSeconds      float64  `json:"waitSeconds"`
}

type PreviewEntry struct {
	TeamA                 []GroupView `json:"teamA"`
	TeamB                 []GroupView `json:"teamB"`
	Score                 float64     `json:"score"`
	TeamARating           float64     `json:"teamARating"`
	TeamBRating           float64     `json:"teamBRating"`
	TeamEloDifference     float64     `json:"teamEloDifference"`
	TeammateEloDifference float64     `json:"teammateEloDifference"`
	OldestWaitSeconds     float64     `json:"oldestWaitSeconds"`
}

// Preview 현재 큐로 만들 수 있는 후보 매치를 점수 순으로 조회 (매치를 시작하지 않음)
func (h *QueueHandler) Preview(c *gin.Context) {
	mode := c.Param("mode")

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPreviewLimit)))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "limit must be a positive integer",
		})
		return
	}
	if limit > maxPreviewLimit {
		limit = maxPreviewLimit
	}

	matches, err := h.queueService.Preview(c.Request.Context(), mode, limit)
	if err != nil {
		writeQueueError(c, err, "Failed to preview matches")
		return
	}

	now := time.Now()
	entries := make([]PreviewEntry, 0, len(matches))
	for _, m := range matches {
		entries = append(entries, PreviewEntry{
			TeamA:                 groupViews(m.TeamA, now),
			TeamB:                 groupViews(m.TeamB, now),
			Score:                 m.Score,
			TeamARating:           m.TeamARating,
			TeamBRating:           m.TeamBRating,
			TeamEloDifference:     m.TeamEloDifference,
			TeammateEloDifference: m.TeammateEloDifference,
			OldestWaitSeconds:     m.OldestWaitDuration.Seconds(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"mode":    mode,
		"matches": entries,
		"total":   len(entries),
	})
}

func groupViews(groups []matchmaker.Group, now time.Time) []GroupView {
	views := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, GroupView{
			ID:               g.ID,
			MemberAccountIDs: g.MemberAccountIDs,
			WaitSeconds:      g.WaitTime(now).Seconds(),
		})
	}
	return views
}

func writeQueueError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrModeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrGroupNotQueued):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidGroup), errors.Is(err, service.ErrGroupTooLarge):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAlreadyQueued):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Error(fallback, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

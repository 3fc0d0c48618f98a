package http

import (
	"errors"
	"net/http"

	"meetcore/internal/core/domain"
	"meetcore/internal/core/services"
	cerr "meetcore/pkg/errors"
	"meetcore/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MeetingHandler exposes the local attendance to the UI process. It is an
// intent/read surface: every mutation goes through the lifecycle
// controller, never directly into roster or link state.
type MeetingHandler struct {
	meeting *services.Meeting
}

func NewMeetingHandler(meeting *services.Meeting) *MeetingHandler {
	return &MeetingHandler{meeting: meeting}
}

func (h *MeetingHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/session", h.GetSession)
		api.GET("/roster", h.GetRoster)
		api.GET("/media", h.GetLocalMedia)

		api.POST("/media/audio", h.ToggleAudio)
		api.POST("/media/video", h.ToggleVideo)
		api.POST("/media/screen-share", h.SetScreenShare)

		api.GET("/chat", h.GetChatHistory)
		api.POST("/chat", h.SendChat)

		api.POST("/leave", h.Leave)
		api.POST("/end", h.End)
	}

	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (h *MeetingHandler) GetSession(c *gin.Context) {
	session := h.meeting.Session()
	c.JSON(http.StatusOK, gin.H{
		"session":          session,
		"is_host":          h.meeting.IsHost(),
		"connection_state": h.meeting.ConnectionState(),
	})
}

func (h *MeetingHandler) GetRoster(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"participants": h.meeting.Roster(),
	})
}

func (h *MeetingHandler) GetLocalMedia(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"media": h.meeting.LocalMedia(),
	})
}

func (h *MeetingHandler) ToggleAudio(c *gin.Context) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.meeting.ToggleAudio(c.Request.Context(), req.Enabled); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"media": h.meeting.LocalMedia()})
}

func (h *MeetingHandler) ToggleVideo(c *gin.Context) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.meeting.ToggleVideo(c.Request.Context(), req.Enabled); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"media": h.meeting.LocalMedia()})
}

func (h *MeetingHandler) SetScreenShare(c *gin.Context) {
	var req struct {
		Active bool `json:"active"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.meeting.SetScreenShare(c.Request.Context(), req.Active); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"media": h.meeting.LocalMedia()})
}

func (h *MeetingHandler) GetChatHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"messages": h.meeting.ChatHistory(),
	})
}

func (h *MeetingHandler) SendChat(c *gin.Context) {
	var req struct {
		Body string `json:"body" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateChatMessage(req.Body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.meeting.SendChat(req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *MeetingHandler) Leave(c *gin.Context) {
	if err := h.meeting.Leave(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

func (h *MeetingHandler) End(c *gin.Context) {
	if err := h.meeting.End(c.Request.Context()); err != nil {
		if errors.Is(err, domain.ErrNotHost) {
			c.JSON(http.StatusForbidden, gin.H{"error": "only the host can end the meeting"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ended"})
}

func (h *MeetingHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"connection_state": h.meeting.ConnectionState(),
	})
}

func respondError(c *gin.Context, err error) {
	if appErr := cerr.GetAppError(err); appErr != nil {
		c.JSON(appErr.HTTPStatus, gin.H{"error": appErr.Message, "code": appErr.Code})
		return
	}
	switch {
	case errors.Is(err, domain.ErrConnectionUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrSessionEnded):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

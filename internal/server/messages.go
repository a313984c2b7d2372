package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/mhai/internal/models"
)

// createRequest accepts the input under either field name.
type createRequest struct {
	Prompt    *string `json:"prompt"`
	UserInput *string `json:"user_input"`
}

func (r createRequest) text() string {
	for _, v := range []*string{r.Prompt, r.UserInput} {
		if v != nil && strings.TrimSpace(*v) != "" {
			return *v
		}
	}
	return ""
}

func (s *Server) handleList(surface string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var since *uint
		if raw := c.Query("since_id"); raw != "" {
			n, err := strconv.ParseUint(raw, 10, 0)
			if err != nil {
				abortDetail(c, http.StatusBadRequest, "since_id must be a non-negative integer")
				return
			}
			id := uint(n)
			since = &id
		}

		msgs, err := listMessages(s.db, surface, sessionFrom(c).UserID, since)
		if err != nil {
			abortDetail(c, http.StatusInternalServerError, err.Error())
			return
		}
		if msgs == nil {
			msgs = []models.Message{}
		}
		c.JSON(http.StatusOK, msgs)
	}
}

// handleCreate stores a new message. Chat messages are answered before the
// response is written; diary entries are queued and answered later.
func (s *Server) handleCreate(surface string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortDetail(c, http.StatusBadRequest, "invalid JSON body")
			return
		}
		text := req.text()
		if text == "" {
			abortDetail(c, http.StatusBadRequest, "prompt is required")
			return
		}

		msg := models.Message{
			Surface:         surface,
			UserID:          sessionFrom(c).UserID,
			Prompt:          text,
			Status:          models.StatusStarted,
			PromptTimestamp: s.now(),
		}
		if err := s.db.Create(&msg).Error; err != nil {
			abortDetail(c, http.StatusInternalServerError, err.Error())
			return
		}

		if surface == models.SurfaceChat {
			s.answer(c.Request.Context(), msg.ID)
			stored, err := getMessage(s.db, msg.ID)
			if err != nil {
				abortDetail(c, http.StatusInternalServerError, err.Error())
				return
			}
			msg = *stored
		} else {
			s.enqueue(msg.ID)
		}
		c.JSON(http.StatusCreated, msg)
	}
}

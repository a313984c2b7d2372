package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/zulandar/mhai/internal/models"
)

// Cookie and header names.
const (
	SessionCookie = "sessionid"
	CSRFCookie    = "csrftoken"
	CSRFHeader    = "X-CSRFToken"
)

const ctxSession = "session"

type loginRequest struct {
	Username string `json:"username"`
}

// handleLogin opens a session for a username, creating the user on first
// use. It is a development stand-in for real authentication.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortDetail(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		abortDetail(c, http.StatusBadRequest, "username is required")
		return
	}

	user, err := findOrCreateUser(s.db, username)
	if err != nil {
		abortDetail(c, http.StatusInternalServerError, err.Error())
		return
	}
	now := s.now()
	sess := models.Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		CSRFToken: uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.db.Create(&sess).Error; err != nil {
		abortDetail(c, http.StatusInternalServerError, err.Error())
		return
	}

	s.setSessionCookies(c, &sess)
	c.JSON(http.StatusOK, gin.H{"id": user.ID, "username": user.Username})
}

func (s *Server) handleLogout(c *gin.Context) {
	sess := sessionFrom(c)
	if err := deleteSession(s.db, sess.Token); err != nil {
		abortDetail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
	c.SetCookie(CSRFCookie, "", -1, "/", "", false, false)
	c.Status(http.StatusNoContent)
}

// handleCSRF re-issues the CSRF cookie for the current session.
func (s *Server) handleCSRF(c *gin.Context) {
	s.setSessionCookies(c, sessionFrom(c))
	c.Status(http.StatusNoContent)
}

func (s *Server) setSessionCookies(c *gin.Context, sess *models.Session) {
	maxAge := int(s.sessionTTL.Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, sess.Token, maxAge, "/", "", false, true)
	c.SetCookie(CSRFCookie, sess.CSRFToken, maxAge, "/", "", false, false)
}

// requireSession rejects requests without a live session cookie.
func (s *Server) requireSession(c *gin.Context) {
	token, err := c.Cookie(SessionCookie)
	if err != nil || token == "" {
		abortDetail(c, http.StatusUnauthorized, "Authentication credentials were not provided.")
		return
	}
	sess, err := findSession(s.db, token)
	if err != nil || sess.Expired(s.now()) {
		abortDetail(c, http.StatusUnauthorized, "Invalid or expired session.")
		return
	}
	c.Set(ctxSession, sess)
	c.Next()
}

// requireCSRF rejects unsafe requests whose X-CSRFToken header does not
// match the session's token.
func (s *Server) requireCSRF(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		c.Next()
		return
	}
	sess := sessionFrom(c)
	if sess == nil || c.GetHeader(CSRFHeader) != sess.CSRFToken {
		abortDetail(c, http.StatusForbidden, "CSRF Failed: CSRF token missing or incorrect.")
		return
	}
	c.Next()
}

func sessionFrom(c *gin.Context) *models.Session {
	v, ok := c.Get(ctxSession)
	if !ok {
		return nil
	}
	sess, _ := v.(*models.Session)
	return sess
}

package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"studynotes/internal/transport/http/middleware"
)

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	raw, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := raw.(uint)
	if !ok || userID == 0 {
		return 0, false
	}
	return userID, true
}

func parseUintParam(c *gin.Context, key string) (uint, error) {
	s := c.Param(key)
	u, err := strconv.ParseUint(s, 10, 64)
	return uint(u), err
}

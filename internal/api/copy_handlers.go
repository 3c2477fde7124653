package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safar/cosmetics-store/internal/copywriter"
)

func (s *Server) generateCopy(c *gin.Context) {
	if s.copy == nil {
		respondError(c, copywriter.ErrNotConfigured)
		return
	}

	var in copywriter.Input
	if !bindJSON(c, &in) {
		return
	}

	out, err := s.copy.Generate(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

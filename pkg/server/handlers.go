package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wakeguard/wakeguard/pkg/strategy"
	"github.com/wakeguard/wakeguard/pkg/wakelock"
)

type requestBody struct {
	Kind          string `json:"kind"`
	TimeoutMS     int    `json:"timeout_ms"`
	RetryAttempts int    `json:"retry_attempts"`
	Passive       *bool  `json:"passive"`
}

type sentinelResponse struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Strategy string `json:"strategy"`
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.GetStatus())
}

func (s *Server) handleStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"supported":  s.orch.IsSupported(),
		"strategies": s.orch.SupportedStrategies(),
	})
}

func (s *Server) handlePermissions(c *gin.Context) {
	kind := strategy.Kind(c.DefaultQuery("kind", string(strategy.KindScreen)))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, errorResponse{
			Code:  string(strategy.CodeInvalidState),
			Error: "kind must be screen or system",
		})
		return
	}
	state, err := s.orch.CheckPermissions(c.Request.Context(), kind)
	if err != nil {
		c.JSON(http.StatusBadGateway, errorResponse{
			Code:  string(strategy.Classify(err)),
			Error: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "state": state})
}

func (s *Server) handleRequest(c *gin.Context) {
	var body requestBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{
				Code:  string(strategy.CodeInvalidState),
				Error: "invalid request body: " + err.Error(),
			})
			return
		}
	}

	opts := wakelock.RequestOptions{
		Timeout:       time.Duration(body.TimeoutMS) * time.Millisecond,
		RetryAttempts: body.RetryAttempts,
		Passive:       body.Passive,
	}
	sentinel, err := s.orch.Request(c.Request.Context(), strategy.Kind(body.Kind), opts)
	if err != nil {
		code := strategy.Classify(err)
		c.JSON(httpStatusFor(code), errorResponse{Code: string(code), Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, sentinelResponse{
		ID:       sentinel.ID(),
		Kind:     string(sentinel.Kind()),
		Strategy: sentinel.StrategyName(),
	})
}

func (s *Server) handleRelease(c *gin.Context) {
	s.orch.Release(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"released": true})
}

func httpStatusFor(code strategy.Code) int {
	switch code {
	case strategy.CodeNotSupported:
		return http.StatusNotImplemented
	case strategy.CodePermissionDenied:
		return http.StatusForbidden
	case strategy.CodeInvalidState:
		return http.StatusConflict
	case strategy.CodeTimeout:
		return http.StatusGatewayTimeout
	case strategy.CodeStrategyFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var errStreamUnsupported = errors.New("response writer does not support streaming")

// Package server exposes the watch operations over HTTP. Business failures
// ride in the payload with a non-zero code; the transport status stays 200.
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"spreadwatch/internal/errs"
	"spreadwatch/internal/model"
	"spreadwatch/internal/watch"
	"spreadwatch/logger"
)

// Resp is the response envelope: code 0 means success.
type Resp struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func ok(data interface{}) Resp {
	return Resp{Code: 0, Message: "success", Data: data}
}

func fail(code int, msg string) Resp {
	return Resp{Code: code, Message: msg}
}

// Server wires the watch service into a gin engine.
type Server struct {
	svc    *watch.Service
	engine *gin.Engine
	log    *logger.Entry
}

// New builds the router.
func New(svc *watch.Service) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		svc:    svc,
		engine: engine,
		log:    logger.GetLogger().WithComponent("http_server"),
	}

	api := engine.Group("/api/watch")
	api.GET("/book-tickers", s.bookTickers)
	api.GET("/book-options", s.bookOptions)

	return s
}

// Handler returns the root handler for an http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) bookTickers(c *gin.Context) {
	s.log.LogMetric("http_server", "book_ticker_requests", 1, "counter", nil)

	var req model.WatchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusOK, fail(1, "invalid request: "+err.Error()))
		return
	}

	rows, err := s.svc.BookTickers(c.Request.Context(), req)
	if err != nil {
		s.log.WithError(err).Warn("book tickers request failed")
		c.JSON(http.StatusOK, s.bizResp(err))
		return
	}
	c.JSON(http.StatusOK, ok(rows))
}

func (s *Server) bookOptions(c *gin.Context) {
	c.JSON(http.StatusOK, ok(s.svc.BookOptions()))
}

// bizResp maps the error taxonomy onto the payload envelope.
func (s *Server) bizResp(err error) Resp {
	var biz *errs.BizError
	if errors.As(err, &biz) {
		return fail(biz.Code, biz.Message)
	}
	var resolution *errs.ResolutionError
	if errors.As(err, &resolution) {
		return fail(1, resolution.Error())
	}
	var fatal *errs.FatalUpstream
	if errors.As(err, &fatal) {
		return fail(1, fatal.Error())
	}
	return fail(1, err.Error())
}

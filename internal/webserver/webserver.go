package webserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/silamd/wabothub/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ctxKeyDB is the echo context key handlers use via GetDB.
const ctxKeyDB = "db"

var server *WebServer

// WebServer wraps the echo instance serving the HTTP API.
type WebServer struct {
	root *echo.Echo
	cfg  *config.AppConfig
	db   *gorm.DB
	api  *echo.Group
}

// Init builds the global web server. Route registration through ApiGET and
// friends is only valid after Init returns.
func Init(cfg *config.AppConfig, db *gorm.DB) *WebServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(requestLogger())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(ctxKeyDB, db)
			return next(c)
		}
	})

	server = &WebServer{
		root: e,
		cfg:  cfg,
		db:   db,
		api:  e.Group("/api"),
	}
	return server
}

// Start blocks serving HTTP until the listener fails or is shut down.
func (s *WebServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Web.Host, s.cfg.Web.Port)
	zap.L().Info("http server listening", zap.String("addr", addr))
	err := s.root.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *WebServer) Echo() *echo.Echo {
	return s.root
}

// RootGET registers a handler directly under the server root, outside the
// /api group.
func RootGET(path string, h echo.HandlerFunc) {
	server.root.GET(path, h)
}

func ApiGET(path string, h echo.HandlerFunc) {
	server.api.GET(path, h)
}

func ApiPOST(path string, h echo.HandlerFunc) {
	server.api.POST(path, h)
}

func ApiPUT(path string, h echo.HandlerFunc) {
	server.api.PUT(path, h)
}

func ApiDELETE(path string, h echo.HandlerFunc) {
	server.api.DELETE(path, h)
}

// GetDB returns the request-scoped database handle set by Init's middleware.
func GetDB(c echo.Context) *gorm.DB {
	db, _ := c.Get(ctxKeyDB).(*gorm.DB)
	return db
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			zap.L().Debug("http request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status))
			return nil
		},
	})
}

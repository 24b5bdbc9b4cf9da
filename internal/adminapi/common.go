package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/silamd/wabothub/config"
	"github.com/silamd/wabothub/internal/store"
	"github.com/silamd/wabothub/internal/supervisor"
	"github.com/spf13/cast"
)

var (
	appConfig *config.AppConfig
	sup       *supervisor.Supervisor
	botStore  *store.Store
)

// InitRouter wires the API surface. Call after webserver.Init.
func InitRouter(cfg *config.AppConfig, s *supervisor.Supervisor, st *store.Store) {
	appConfig = cfg
	sup = s
	botStore = st
	registerStatusRoutes()
	registerPairRoutes()
	registerSessionRoutes()
	registerSettingsRoutes()
	registerSendRoutes()
}

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Detail  interface{} `json:"detail,omitempty"`
}

type pagedData struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, apiResponse{Success: true, Data: data})
}

func fail(c echo.Context, status int, code, message string, detail interface{}) error {
	return c.JSON(status, apiResponse{
		Success: false,
		Error:   &apiError{Code: code, Message: message, Detail: detail},
	})
}

func paged(c echo.Context, items interface{}, total int64, page, pageSize int) error {
	return ok(c, pagedData{Items: items, Total: total, Page: page, PageSize: pageSize})
}

func parsePagination(c echo.Context) (page, pageSize int) {
	page = cast.ToInt(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize = cast.ToInt(c.QueryParam("page_size"))
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	return page, pageSize
}

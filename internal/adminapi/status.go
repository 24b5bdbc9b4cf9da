package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/silamd/wabothub/internal/webserver"
)

func registerStatusRoutes() {
	webserver.RootGET("/health", getHealth)
}

// getHealth reports process liveness plus database reachability. It lives
// outside the /api group so monitoring can hit it directly.
func getHealth(c echo.Context) error {
	sqlDB, err := webserver.GetDB(c).DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request().Context())
	}
	if err != nil {
		return fail(c, http.StatusServiceUnavailable, "DATABASE_DOWN", "Database unreachable", err.Error())
	}
	return ok(c, map[string]interface{}{
		"status":          "up",
		"active_sessions": sup.Registry().Len(),
	})
}

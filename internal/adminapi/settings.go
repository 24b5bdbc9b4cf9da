package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/silamd/wabothub/internal/store"
	"github.com/silamd/wabothub/internal/webserver"
	"github.com/silamd/wabothub/pkg/common"
)

func registerSettingsRoutes() {
	webserver.ApiGET("/sessions/:number/settings", getSettings)
	webserver.ApiPUT("/sessions/:number/settings", updateSettings)
}

var settableKeys = map[string]bool{
	store.KeyWorkType:       true,
	store.KeyAutoRead:       true,
	store.KeyOnline:         true,
	store.KeyAutoViewStatus: true,
	store.KeyAutoLikeStatus: true,
	store.KeyWelcomeMessage: true,
	store.KeyGoodbyeMessage: true,
}

func getSettings(c echo.Context) error {
	number := common.SanitizeNumber(c.Param("number"))
	if number == "" {
		return fail(c, http.StatusBadRequest, "INVALID_NUMBER", "Invalid phone number", nil)
	}
	settings, err := botStore.GetSettings(number)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to read settings", err.Error())
	}
	return ok(c, settings)
}

// updateSettings applies a partial patch of name/value pairs; unknown names
// are rejected rather than silently stored.
func updateSettings(c echo.Context) error {
	number := common.SanitizeNumber(c.Param("number"))
	if number == "" {
		return fail(c, http.StatusBadRequest, "INVALID_NUMBER", "Invalid phone number", nil)
	}

	var patch map[string]string
	if err := c.Bind(&patch); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if len(patch) == 0 {
		return fail(c, http.StatusBadRequest, "EMPTY_PATCH", "No settings provided", nil)
	}
	for name := range patch {
		if !settableKeys[name] {
			return fail(c, http.StatusBadRequest, "UNKNOWN_SETTING", "Unknown setting: "+name, nil)
		}
	}
	if wt, found := patch[store.KeyWorkType]; found && wt != "public" && wt != "self" {
		return fail(c, http.StatusBadRequest, "INVALID_VALUE", "worktype must be public or self", nil)
	}

	if err := botStore.SaveSettings(number, patch); err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to save settings", err.Error())
	}
	settings, err := botStore.GetSettings(number)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to read settings", err.Error())
	}
	return ok(c, settings)
}

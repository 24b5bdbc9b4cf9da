package adminapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/silamd/wabothub/internal/webserver"
	"github.com/silamd/wabothub/pkg/common"
)

func registerSendRoutes() {
	webserver.ApiPOST("/send", postSend)
}

// postSend sends a text message from a connected number.
// Request JSON: { "number": "628...", "jid": "628...@s.whatsapp.net", "text": "hello" }
func postSend(c echo.Context) error {
	var payload struct {
		Number string `json:"number"`
		Jid    string `json:"jid"`
		Text   string `json:"text"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	number := common.SanitizeNumber(payload.Number)
	if number == "" || payload.Jid == "" || payload.Text == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "number, jid and text are required", nil)
	}

	entry, found := sup.Registry().Get(number)
	if !found || !entry.Open || entry.Session == nil {
		return fail(c, http.StatusConflict, "NOT_CONNECTED", "Number is not connected", nil)
	}

	jid := payload.Jid
	if !strings.Contains(jid, "@") {
		jid += "@s.whatsapp.net"
	}
	if err := entry.Session.SendText(c.Request().Context(), jid, payload.Text); err != nil {
		return fail(c, http.StatusInternalServerError, "SEND_FAILED", "Failed to send message", err.Error())
	}
	return ok(c, map[string]interface{}{"sent": true})
}

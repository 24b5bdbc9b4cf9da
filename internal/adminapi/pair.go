package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/silamd/wabothub/internal/supervisor"
	"github.com/silamd/wabothub/internal/webserver"
	"github.com/silamd/wabothub/pkg/common"
	"go.uber.org/zap"
)

func registerPairRoutes() {
	webserver.ApiGET("", getPair)
}

// getPair starts (or reports) a connection for ?number= and blocks until the
// attempt produces its single terminal result: pairing code, QR, connected,
// already connected, a classified error, or the attempt timeout.
func getPair(c echo.Context) error {
	number := common.SanitizeNumber(c.QueryParam("number"))
	if len(number) < 10 {
		return fail(c, http.StatusBadRequest, "INVALID_NUMBER",
			"Provide a valid phone number with country code, digits only", nil)
	}

	rsp := supervisor.NewResponder()
	sup.Connect(number, rsp)

	res, done := rsp.Wait(c.Request().Context())
	if !done {
		// caller went away; the attempt keeps running unattended
		zap.L().Info("pairing caller disconnected", zap.String("number", number))
		return nil
	}

	code := res.HTTPCode
	if code == 0 {
		code = http.StatusOK
	}
	return c.JSON(code, res)
}

package adminapi

import (
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/silamd/wabothub/internal/webserver"
	"github.com/silamd/wabothub/pkg/common"
	"go.uber.org/zap"
)

func registerSessionRoutes() {
	webserver.ApiGET("/sessions", listSessions)
	webserver.ApiDELETE("/sessions/:number", deleteSession)
}

type sessionView struct {
	Number    string     `json:"number"`
	Jid       string     `json:"jid,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	Connected bool       `json:"connected"`
	OpenedAt  *time.Time `json:"opened_at,omitempty"`
}

// listSessions merges the persisted session records with the live registry,
// so stored-but-disconnected numbers show up alongside active ones.
func listSessions(c echo.Context) error {
	records, err := botStore.ListSessions()
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query sessions", err.Error())
	}

	views := make(map[string]*sessionView, len(records))
	order := make([]string, 0, len(records))
	for _, rec := range records {
		views[rec.Number] = &sessionView{
			Number:    rec.Number,
			Jid:       rec.Jid,
			SessionID: rec.SessionID,
		}
		order = append(order, rec.Number)
	}
	for _, entry := range sup.Registry().List() {
		v, found := views[entry.Number]
		if !found {
			v = &sessionView{Number: entry.Number}
			views[entry.Number] = v
			order = append(order, entry.Number)
		}
		if entry.Open {
			v.Connected = true
			openedAt := entry.CreatedAt
			v.OpenedAt = &openedAt
		}
	}

	out := make([]sessionView, 0, len(order))
	for _, number := range order {
		out = append(out, *views[number])
	}

	page, pageSize := parsePagination(c)
	total := int64(len(out))
	start := (page - 1) * pageSize
	if start > len(out) {
		start = len(out)
	}
	end := start + pageSize
	if end > len(out) {
		end = len(out)
	}
	return paged(c, out[start:end], total, page, pageSize)
}

// deleteSession logs a number out: closes any live connection, drops the
// stored record and wipes the local credential cache.
func deleteSession(c echo.Context) error {
	number := common.SanitizeNumber(c.Param("number"))
	if number == "" {
		return fail(c, http.StatusBadRequest, "INVALID_NUMBER", "Invalid phone number", nil)
	}

	if entry, found := sup.Registry().Get(number); found {
		if entry.Session != nil {
			entry.Session.Close()
		}
		sup.Registry().Release(number)
	}
	if err := botStore.DeleteSession(number); err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete session record", err.Error())
	}
	if err := os.RemoveAll(appConfig.SessionDir(number)); err != nil {
		zap.L().Warn("session directory cleanup failed", zap.String("number", number), zap.Error(err))
	}

	return ok(c, map[string]interface{}{"deleted": number})
}

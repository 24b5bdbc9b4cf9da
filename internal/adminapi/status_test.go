package adminapi

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/silamd/wabothub/config"
	"github.com/silamd/wabothub/internal/domain"
	"github.com/silamd/wabothub/internal/store"
	"github.com/silamd/wabothub/internal/supervisor"
	"github.com/silamd/wabothub/internal/webserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testServer(t *testing.T) *webserver.WebServer {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.BotSession{}, &domain.BotSettingsKV{}))

	cfg := config.DefaultAppConfig()
	ws := webserver.Init(cfg, db)
	s := supervisor.New(cfg, supervisor.NewRegistry(), nil, nil, nil, nil)
	InitRouter(cfg, s, store.New(db))
	return ws
}

func TestHealthReportsDatabaseUp(t *testing.T) {
	ws := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	ws.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"up"`)
	assert.Contains(t, rec.Body.String(), `"active_sessions":0`)
}

func TestPairRejectsShortNumber(t *testing.T) {
	ws := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api?number=123", nil)
	rec := httptest.NewRecorder()
	ws.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_NUMBER")
}

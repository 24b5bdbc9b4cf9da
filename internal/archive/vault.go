package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/silamd/wabothub/pkg/common"
	"go.uber.org/zap"
)

const (
	// RemoteTag marks a session id whose credentials live in the blob store.
	RemoteTag = "SESSION-ID~"
	// LocalTag marks a session id pointing at a local credential file,
	// recorded when remote archiving failed.
	LocalTag = "LOCAL~"

	// CredsFileName is the serialized credential file inside a number's
	// session directory.
	CredsFileName = "wa.db"

	downloadRetries = 3
)

var ErrNotConfigured = errors.New("session archive is not configured")

// ErrInvalidSessionID is returned for malformed or unknown session id tags.
// It is an input-validation failure, never retried.
var ErrInvalidSessionID = errors.New("invalid session ID format")

// Vault translates between opaque session id strings and bytes in the blob
// store. Archive runs once per successful connection; Restore runs from the
// bootstrapper before a reconnect attempt.
type Vault struct {
	blob        Blob
	sessionBase string
	workdir     string
	sleep       func(time.Duration)
}

func NewVault(blob Blob, sessionBase, workdir string) *Vault {
	return &Vault{
		blob:        blob,
		sessionBase: sessionBase,
		workdir:     workdir,
		sleep:       time.Sleep,
	}
}

// Configured reports whether a remote blob store is available.
func (v *Vault) Configured() bool {
	return v != nil && v.blob != nil
}

// CredsPath returns the credential file location for a sanitized number.
func (v *Vault) CredsPath(number string) string {
	return filepath.Join(v.sessionBase, "session_"+number, CredsFileName)
}

// Archive uploads the credential file under a random blob name and returns
// the SESSION-ID~ tagged session id. It fails loudly when no blob store is
// configured; the supervisor catches that and falls back to a LOCAL~ tag.
func (v *Vault) Archive(ctx context.Context, credsPath string) (string, error) {
	if !v.Configured() {
		return "", ErrNotConfigured
	}
	f, err := os.Open(credsPath)
	if err != nil {
		return "", fmt.Errorf("credential file not readable: %w", err)
	}
	defer f.Close()

	name := common.RandomBlobName(6, 4) + ".db"
	ref, err := v.blob.Upload(ctx, name, f)
	if err != nil {
		return "", fmt.Errorf("credential upload failed: %w", err)
	}
	return RemoteTag + ref, nil
}

// LocalSessionID builds the LOCAL~ fallback session id for a credential file.
// The recorded path is workdir-relative when the file lives under the workdir
// and absolute otherwise, so Restore resolves it regardless of the CWD the
// process was started from.
func (v *Vault) LocalSessionID(credsPath string) string {
	if rel, err := filepath.Rel(v.workdir, credsPath); err == nil && !strings.HasPrefix(rel, "..") && filepath.IsAbs(credsPath) {
		return LocalTag + rel
	}
	if abs, err := filepath.Abs(credsPath); err == nil {
		return LocalTag + abs
	}
	return LocalTag + credsPath
}

// Restore materializes the credential file for a number from its session id
// and returns the local path. SESSION-ID~ downloads are retried with
// exponential backoff; LOCAL~ ids only verify the referenced path; anything
// else is rejected as ErrInvalidSessionID.
func (v *Vault) Restore(ctx context.Context, sessionID, number string) (string, error) {
	if sessionID == "" {
		return "", ErrInvalidSessionID
	}

	if local, ok := strings.CutPrefix(sessionID, LocalTag); ok {
		if !filepath.IsAbs(local) {
			local = filepath.Join(v.workdir, local)
		}
		if !common.FileExists(local) {
			return "", errors.New("local creds not found")
		}
		return local, nil
	}

	ref, ok := strings.CutPrefix(sessionID, RemoteTag)
	if !ok || ref == "" {
		return "", ErrInvalidSessionID
	}
	if !v.Configured() {
		return "", ErrNotConfigured
	}

	credsPath := v.CredsPath(number)
	if err := os.MkdirAll(filepath.Dir(credsPath), 0o755); err != nil {
		return "", fmt.Errorf("session directory not creatable: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= downloadRetries; attempt++ {
		data, err := v.blob.Download(ctx, ref)
		if err == nil {
			if err := os.WriteFile(credsPath, data, 0o600); err != nil {
				return "", fmt.Errorf("credential file not writable: %w", err)
			}
			return credsPath, nil
		}
		lastErr = err
		zap.L().Warn("session download attempt failed",
			zap.String("number", number), zap.Int("attempt", attempt), zap.Error(err))
		if attempt < downloadRetries {
			v.sleep(2 * time.Second * time.Duration(attempt))
		}
	}
	return "", errors.Wrap(lastErr, "credential download failed")
}

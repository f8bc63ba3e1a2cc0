// Package logfields holds the canonical slog attribute keys used across distbuilder.
package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBranch       = "branch"
	KeyFile         = "file"
	KeyArtifactType = "artifact_type"
	KeyPath         = "path"
	KeyURL          = "url"
	KeyStatus       = "status"
	KeyStage        = "stage"
	KeyKey          = "key"
	KeyJobID        = "job_id"
	KeyAttempt      = "attempt"
	KeyDuration     = "duration"
	KeyMethod       = "method"
	KeyUserAgent    = "user_agent"
	KeyRemoteAddr   = "remote_addr"
	KeyError        = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Branch(b string) slog.Attr          { return slog.String(KeyBranch, b) }
func File(f string) slog.Attr            { return slog.String(KeyFile, f) }
func ArtifactType(t string) slog.Attr    { return slog.String(KeyArtifactType, t) }
func Path(p string) slog.Attr            { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr             { return slog.String(KeyURL, u) }
func Status(code int) slog.Attr          { return slog.Int(KeyStatus, code) }
func Stage(name string) slog.Attr        { return slog.String(KeyStage, name) }
func Key(k string) slog.Attr             { return slog.String(KeyKey, k) }
func JobID(id string) slog.Attr          { return slog.String(KeyJobID, id) }
func Attempt(n int) slog.Attr            { return slog.Int(KeyAttempt, n) }
func Duration(d time.Duration) slog.Attr { return slog.Duration(KeyDuration, d) }
func Method(m string) slog.Attr          { return slog.String(KeyMethod, m) }
func UserAgent(ua string) slog.Attr      { return slog.String(KeyUserAgent, ua) }
func RemoteAddr(a string) slog.Attr      { return slog.String(KeyRemoteAddr, a) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

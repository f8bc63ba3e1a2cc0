package errors

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IncidentLog writes one diagnostic file per server-side failure.
type IncidentLog struct {
	dir string
	now func() time.Time
}

// NewIncidentLog returns an IncidentLog writing into dir.
func NewIncidentLog(dir string) *IncidentLog {
	return &IncidentLog{dir: dir, now: time.Now}
}

// IncidentName formats the UTC timestamp used as the record file name prefix.
func IncidentName(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%d-%d-%dT%d-%d-%d", t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
}

// Record writes err, its context, the wrapped chain and the current stack to a new file.
func (l *IncidentLog) Record(err error, attrs map[string]string) (string, error) {
	if err := os.MkdirAll(l.dir, 0o750); err != nil {
		return "", fmt.Errorf("create incident dir: %w", err)
	}
	now := l.now()
	name := IncidentName(now) + "-" + uuid.NewString()[:8] + ".log"
	path := filepath.Join(l.dir, name)

	var b strings.Builder
	fmt.Fprintf(&b, "time: %s\n", now.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "message: %s\n", err.Error())
	if c, ok := AsClassified(err); ok {
		fmt.Fprintf(&b, "category: %s\nseverity: %s\n", c.Category(), c.Severity())
		writeSorted(&b, "context", stringify(c.Context()))
	}
	writeSorted(&b, "request", attrs)

	b.WriteString("chain:\n")
	for cur := err; cur != nil; cur = stderrors.Unwrap(cur) {
		fmt.Fprintf(&b, "  - %T: %s\n", cur, cur.Error())
	}
	b.WriteString("stack:\n")
	b.Write(debug.Stack())

	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return "", fmt.Errorf("write incident: %w", err)
	}
	return path, nil
}

func stringify(ctx ErrorContext) map[string]string {
	out := make(map[string]string, len(ctx))
	for k, v := range ctx {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func writeSorted(b *strings.Builder, title string, m map[string]string) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(b, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(b, "  %s: %s\n", k, m[k])
	}
}

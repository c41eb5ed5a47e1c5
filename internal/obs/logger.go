// Package obs provides the ambient logging setup shared by every component.
package obs

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
)

// New returns a logr.Logger backed by slog. A negative level discards all
// output; otherwise level is the V-level verbosity (0 is info).
func New(level int) logr.Logger {
	if level < 0 {
		return logr.Discard()
	}
	return defaultLogger(level)
}

// defaultLogger mirrors the teacher's slog-based logr construction: source
// paths are trimmed to the module root onward, and the level is rendered as
// its raw integer so V-level flags show up unchanged in the logs.
func defaultLogger(level int) logr.Logger {
	customAttr := func(_ []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			ss, ok := a.Value.Any().(*slog.Source)
			if !ok || ss == nil {
				return a
			}

			p := strings.Split(ss.File, "/")
			var idx int

			for i, v := range p {
				if v == "hwprovisiond" {
					if i+2 < len(p) {
						idx = i + 2
						break
					}
				}
				if v == "mod" {
					if i+1 < len(p) {
						idx = i + 1
						break
					}
				}
			}
			ss.File = filepath.Join(p[idx:]...)
			ss.File = fmt.Sprintf("%s:%d", ss.File, ss.Line)
			a.Value = slog.StringValue(ss.File)
			a.Key = "caller"

			return a
		}

		if a.Key == slog.LevelKey {
			b, ok := a.Value.Any().(slog.Level)
			if !ok {
				return a
			}
			a.Value = slog.StringValue(strconv.Itoa(int(b)))
			return a
		}

		return a
	}

	opts := &slog.HandlerOptions{
		AddSource:   true,
		Level:       slog.Level(-level),
		ReplaceAttr: customAttr,
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, opts))

	return logr.FromSlogHandler(log.Handler())
}

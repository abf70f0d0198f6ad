// Package daemon assembles the long-running process around the bridge,
// igmp and mld engines: logging, pidfile management, and wiring the
// engines and bridge instances together. Configuration loading, the
// Prometheus HTTP endpoint and signal-driven shutdown live in
// cmd/mcast-bridged.
// It mirrors the reference daemon's main.c at the level of process
// lifecycle, while delegating all protocol behavior to the other
// packages.
package daemon

import (
	"log/slog"
	"log/syslog"
	"os"

	"github.com/lmittmann/tint"
)

// DebugLevel is the value of the -D flag: 0 disables debug logging, and
// any level above 0 enables every debug message. Levels above 0 are not
// distinguished from one another.
type DebugLevel int

func levelFor(debug DebugLevel) slog.Level {
	if debug <= 0 {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

// NewLogger builds the process logger. In foreground mode without
// useSyslog it uses a tint handler for readable, colorized terminal
// output; otherwise (not in the foreground, or useSyslog set) it logs to
// syslog, matching the reference daemon's foreground/-s split in logger().
func NewLogger(foreground bool, useSyslog bool, debug DebugLevel) (*slog.Logger, error) {
	level := levelFor(debug)

	if foreground && !useSyslog {
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
		})), nil
	}

	w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_WARNING, "mcast-bridged")
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

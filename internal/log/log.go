// Package log provides structured, colored logging for monterrey.
//
// Packages take their component logger at construction time, so Init must
// run before the components it should affect are built.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Component loggers.
var (
	Node    zerolog.Logger
	Ledger  zerolog.Logger
	Wallet  zerolog.Logger
	Watcher zerolog.Logger
	Storage zerolog.Logger
	RPC     zerolog.Logger
	Metrics zerolog.Logger
)

var components = []struct {
	name   string
	logger *zerolog.Logger
}{
	{"node", &Node},
	{"ledger", &Ledger},
	{"wallet", &Wallet},
	{"watcher", &Watcher},
	{"storage", &Storage},
	{"rpc", &RPC},
	{"metrics", &Metrics},
}

const consoleTimeFormat = "15:04:05"

var (
	fileMu sync.Mutex
	file   *os.File
)

func init() {
	setGlobal(New(os.Stdout, zerolog.InfoLevel, false))
}

// ParseLevel converts a level name. The empty string means info.
func ParseLevel(level string) (zerolog.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
	return lvl, nil
}

// New returns a timestamped logger writing to w, colored unless jsonOutput.
func New(w io.Writer, level zerolog.Level, jsonOutput bool) zerolog.Logger {
	if !jsonOutput {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Init configures the global and component loggers. Console output goes to
// stdout. When path is non-empty, logs are also appended to that file,
// always as JSON. A file opened by an earlier Init is closed.
func Init(level string, jsonOutput bool, path string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	var console io.Writer = os.Stdout
	if !jsonOutput {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: consoleTimeFormat}
	}

	var f *os.File
	out := console
	if path != "" {
		f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		out = zerolog.MultiLevelWriter(console, f)
	}

	setGlobal(zerolog.New(out).Level(lvl).With().Timestamp().Logger())
	swapFile(f)
	return nil
}

// Close closes the log file opened by Init, if any. Logging continues on
// the console.
func Close() error {
	fileMu.Lock()
	defer fileMu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

func swapFile(f *os.File) {
	fileMu.Lock()
	defer fileMu.Unlock()
	if file != nil {
		file.Close()
	}
	file = f
}

func setGlobal(l zerolog.Logger) {
	Logger = l
	for _, c := range components {
		*c.logger = l.With().Str("component", c.name).Logger()
	}
}

// Nop returns a disabled logger, for tests and embedded use.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// Benchmark logs the duration of an operation at debug level.
//
//	defer log.Benchmark("tick")()
func Benchmark(name string) func() {
	start := time.Now()
	return func() {
		Logger.Debug().
			Str("operation", name).
			Dur("duration", time.Since(start)).
			Msg("benchmark")
	}
}

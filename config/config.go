package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"strconv"
	"time"
)

const (
	DefaultPort      = 5117
	DefaultChunkSize = 4096
)

// Config holds everything the server and the upload client need. It is
// built once in main and handed to the components; nothing reads globals.
type Config struct {
	Port      int
	ServeDir  string
	UploadDir string
	LogFile   string
	ChunkSize int

	// MaxConns bounds concurrent connection workers. Zero means one
	// goroutine per connection with no limit.
	MaxConns int
	// IdleTimeout closes a connection that makes no progress for this long.
	// Zero disables it.
	IdleTimeout time.Duration
	// MaxUploadSize caps a single upload body in bytes. Zero means unlimited.
	MaxUploadSize int64

	// ServerAddr is the address the upload client dials.
	ServerAddr string

	TUI   bool
	Debug bool
}

func Default() Config {
	return Config{
		Port:       DefaultPort,
		ServeDir:   "resources",
		UploadDir:  "resources/uploaded",
		LogFile:    "log/server.log",
		ChunkSize:  DefaultChunkSize,
		ServerAddr: net.JoinHostPort("localhost", strconv.Itoa(DefaultPort)),
	}
}

// ListenAddr is the address the server binds to.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func RegisterServerFlags(fs *flag.FlagSet, c *Config) {
	fs.IntVar(&c.Port, "port", c.Port, "Port to listen on")
	fs.StringVar(&c.ServeDir, "dir", c.ServeDir, "Directory to serve files from")
	fs.StringVar(&c.UploadDir, "upload-dir", c.UploadDir, "Directory uploaded files are written to")
	fs.StringVar(&c.LogFile, "log", c.LogFile, "Access log file")
	fs.IntVar(&c.ChunkSize, "chunk", c.ChunkSize, "Transfer chunk size in bytes")
	fs.IntVar(&c.MaxConns, "max-conns", c.MaxConns, "Maximum concurrent connections (0 = unlimited)")
	fs.DurationVar(&c.IdleTimeout, "idle-timeout", c.IdleTimeout, "Close connections idle for this long (0 = never)")
	fs.Int64Var(&c.MaxUploadSize, "max-upload", c.MaxUploadSize, "Maximum upload size in bytes (0 = unlimited)")
	fs.BoolVar(&c.TUI, "tui", c.TUI, "Show the terminal UI instead of log output")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Enable debug logging")
}

func RegisterClientFlags(fs *flag.FlagSet, c *Config) {
	fs.StringVar(&c.ServerAddr, "addr", c.ServerAddr, "Server address to upload to")
	fs.IntVar(&c.ChunkSize, "chunk", c.ChunkSize, "Upload chunk size in bytes")
	fs.DurationVar(&c.IdleTimeout, "idle-timeout", c.IdleTimeout, "Abort an upload idle for this long (0 = never)")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Enable debug logging")
}

var ErrInvalidConfig = errors.New("invalid config")

func (c Config) Validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	case c.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidConfig)
	case c.MaxConns < 0:
		return fmt.Errorf("%w: max-conns must not be negative", ErrInvalidConfig)
	case c.IdleTimeout < 0:
		return fmt.Errorf("%w: idle-timeout must not be negative", ErrInvalidConfig)
	case c.MaxUploadSize < 0:
		return fmt.Errorf("%w: max-upload must not be negative", ErrInvalidConfig)
	}
	return nil
}

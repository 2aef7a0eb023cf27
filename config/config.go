package config

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"
)

// Variant names a concurrency strategy
type Variant string

const (
	VariantReactor Variant = "reactor"
	VariantSingle  Variant = "single"
	VariantPooled  Variant = "pooled"
)

var (
	ErrInvalidPort    = errors.New("invalid port")
	ErrInvalidThreads = errors.New("invalid thread count")
	ErrTooManyArgs    = errors.New("too many arguments")
)

// Config holds all server configuration.
// Only Port and, for the pooled variant, Threads come from the command line.
type Config struct {
	Variant Variant
	Port    int

	// Threads is the worker count: CPU workers for the reactor,
	// connection workers for the pooled server
	Threads   int
	QueueSize int

	IdleTimeout time.Duration
	PollTimeout time.Duration

	MaxHeaderBytes int
	MaxBodyBytes   int
	MaxEchoBytes   int
	ReadBufferSize int
}

// DefaultPort returns the listening port a variant uses without arguments
func DefaultPort(v Variant) int {
	switch v {
	case VariantSingle:
		return 8081
	case VariantPooled:
		return 8082
	}
	return 8083
}

// New returns the default configuration for a variant
func New(v Variant) *Config {
	return &Config{
		Variant:        v,
		Port:           DefaultPort(v),
		Threads:        runtime.NumCPU(),
		QueueSize:      8192,
		IdleTimeout:    15 * time.Second,
		PollTimeout:    100 * time.Millisecond,
		MaxHeaderBytes: 64 << 10,
		MaxBodyBytes:   8 << 20,
		MaxEchoBytes:   16 << 20,
		ReadBufferSize: 64 << 10,
	}
}

// ApplyArgs applies positional arguments: port, then (pooled only) threads
func (c *Config) ApplyArgs(args []string) error {
	limit := 1
	if c.Variant == VariantPooled {
		limit = 2
	}
	if len(args) > limit {
		return fmt.Errorf("%w: %s accepts at most %d", ErrTooManyArgs, c.Variant, limit)
	}

	if len(args) > 0 {
		port, err := strconv.Atoi(args[0])
		if err != nil || port < 0 || port > 65535 {
			return fmt.Errorf("%w: %q", ErrInvalidPort, args[0])
		}
		c.Port = port
	}

	if len(args) > 1 {
		threads, err := strconv.Atoi(args[1])
		if err != nil || threads <= 0 {
			return fmt.Errorf("%w: %q", ErrInvalidThreads, args[1])
		}
		c.Threads = threads
	}

	return nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

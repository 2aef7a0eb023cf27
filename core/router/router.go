package router

import (
	"bytes"
	"strconv"
	"time"
)

// Kind classifies how a route's response is produced
type Kind int

const (
	// KindImmediate responses are computed on the reactor thread
	KindImmediate Kind = iota
	// KindCPU responses need a compute burn on a worker
	KindCPU
	// KindDelay responses become available after a timer fires
	KindDelay
	// KindCPUThenDelay burns on a worker, then waits on a timer
	KindCPUThenDelay
)

func (k Kind) String() string {
	switch k {
	case KindImmediate:
		return "immediate"
	case KindCPU:
		return "cpu"
	case KindDelay:
		return "delay"
	case KindCPUThenDelay:
		return "cpu+delay"
	}
	return "unknown"
}

// Route is the classified work for one request. The body is known up front;
// CPU and Delay only describe how long producing it must take.
type Route struct {
	Name  string
	Kind  Kind
	CPU   time.Duration
	Delay time.Duration
	Body  []byte
}

// Filler is the byte /echo bodies are made of
const Filler = 'A'

// DefaultMaxEchoBytes caps /echo allocations process-wide
const DefaultMaxEchoBytes = 16 << 20

// Route names for paths outside the table share one name
const fallbackName = "default"

type routeFunc func(r *Router, q map[string]string) Route

// table is the immutable route table
var table = map[string]routeFunc{
	"/echo":    echoRoute,
	"/cpu":     cpuRoute,
	"/io-slow": ioRoute,
	"/mixed":   mixedRoute,
}

// Router maps (path, query) to a Route. It is stateless apart from its
// limits and safe for concurrent use.
type Router struct {
	maxEcho int
}

// New creates a router; a non-positive ceiling selects DefaultMaxEchoBytes
func New(maxEchoBytes int) *Router {
	if maxEchoBytes <= 0 {
		maxEchoBytes = DefaultMaxEchoBytes
	}
	return &Router{maxEcho: maxEchoBytes}
}

// Route classifies a request. It never fails: unknown paths answer "ok" and
// bad parameters fall back to their defaults.
func (r *Router) Route(path string, query map[string]string) Route {
	if fn, ok := table[path]; ok {
		return fn(r, query)
	}
	return Route{Name: fallbackName, Kind: KindImmediate, Body: []byte("ok")}
}

func echoRoute(r *Router, q map[string]string) Route {
	size := IntParam(q, "size", 1024)
	if size > r.maxEcho {
		size = r.maxEcho
	}
	return Route{
		Name: "/echo",
		Kind: KindImmediate,
		Body: bytes.Repeat([]byte{Filler}, size),
	}
}

func cpuRoute(_ *Router, q map[string]string) Route {
	ms := IntParam(q, "ms", 5)
	return Route{
		Name: "/cpu",
		Kind: KindCPU,
		CPU:  millis(ms),
		Body: []byte("cpu=" + strconv.Itoa(ms) + "ms"),
	}
}

func ioRoute(_ *Router, q map[string]string) Route {
	ms := IntParam(q, "ms", 20)
	return Route{
		Name:  "/io-slow",
		Kind:  KindDelay,
		Delay: millis(ms),
		Body:  []byte("io=" + strconv.Itoa(ms) + "ms"),
	}
}

func mixedRoute(_ *Router, q map[string]string) Route {
	cpu := IntParam(q, "cpuMs", 5)
	io := IntParam(q, "ioMs", 5)
	return Route{
		Name:  "/mixed",
		Kind:  KindCPUThenDelay,
		CPU:   millis(cpu),
		Delay: millis(io),
		Body:  []byte("mixed cpu=" + strconv.Itoa(cpu) + "ms io=" + strconv.Itoa(io) + "ms"),
	}
}

// IntParam reads a non-negative 32-bit integer parameter; missing,
// unparsable, out-of-range or negative values yield def
func IntParam(q map[string]string, key string, def int) int {
	v, ok := q[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil || n < 0 {
		return def
	}
	return int(n)
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

/*
Package concbench provides three HTTP/1.1 servers with identical wire behavior
and different concurrency strategies, for comparing them under load.

Variants

  - reactor (port 8083): one goroutine locked to an OS thread multiplexes every
    socket with epoll (Linux) or kqueue (macOS). CPU work runs on a bounded
    worker pool, simulated I/O waits on a timer heap, and results return to the
    reactor through a completion queue.
  - single (port 8081): one connection at a time, blocking reads and writes.
  - pooled (port 8082): a fixed worker pool, one worker per active connection,
    blocking reads and writes.

Routes

	/echo?size=N             N bytes of 'A' (default 1024)
	/cpu?ms=N                busy-spins N ms (default 5)
	/io-slow?ms=N            waits N ms without holding a thread (default 20)
	/mixed?cpuMs=C&ioMs=I    spins C ms, then waits I ms (defaults 5, 5)
	anything else            "ok"

Quick Start

	concbench reactor 8083
	concbench single
	concbench pooled 8082 16

Modules

  - app: Application lifecycle management
  - config: Variant defaults and argument parsing
  - core: Reactor engine, connection state machine, completion queue
  - core/blocking: Single and pooled blocking servers
  - core/http: Request scanning and response encoding
  - core/router: Route table and CPU burn
  - core/pools: Worker, byte and connection pools
  - core/poller: I/O multiplexing (epoll/kqueue)
  - core/timer: Delay scheduler
  - core/observability: Latency and connection monitoring
*/
package concbench

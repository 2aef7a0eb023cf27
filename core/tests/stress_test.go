package tests

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/nettest"

	"github.com/searchktools/concbench/app"
	"github.com/searchktools/concbench/config"
)

type expectation struct {
	target string
	body   string
}

var mix = []expectation{
	{"/", "ok"},
	{"/echo?size=300", strings.Repeat("A", 300)},
	{"/cpu?ms=1", "cpu=1ms"},
	{"/io-slow?ms=5", "io=5ms"},
	{"/mixed?cpuMs=1&ioMs=2", "mixed cpu=1ms io=2ms"},
	{"/echo?size=%zz", strings.Repeat("A", 1024)},
}

func serve(t *testing.T, v config.Variant) string {
	t.Helper()

	cfg := config.New(v)
	cfg.Threads = 8

	a, err := app.New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errc)
	})
	return ln.Addr().String()
}

// runClient sends requests keep-alive style, pipelining every other batch
func runClient(addr string, id, requests int) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(20 * time.Second))
	br := bufio.NewReader(conn)

	for i := 0; i < requests; {
		batch := 1
		if (id+i)%2 == 1 {
			batch = 3
		}
		if i+batch > requests {
			batch = requests - i
		}

		var raw strings.Builder
		for j := 0; j < batch; j++ {
			fmt.Fprintf(&raw, "GET %s HTTP/1.1\r\nHost: stress\r\n\r\n", mix[(id+i+j)%len(mix)].target)
		}
		if _, err := io.WriteString(conn, raw.String()); err != nil {
			return err
		}

		for j := 0; j < batch; j++ {
			want := mix[(id+i+j)%len(mix)]
			resp, err := nethttp.ReadResponse(br, nil)
			if err != nil {
				return fmt.Errorf("client %d request %d: %w", id, i+j, err)
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if string(body) != want.body {
				return fmt.Errorf("client %d %s: got %d bytes %.20q", id, want.target, len(body), body)
			}
		}
		i += batch
	}
	return nil
}

func TestStress_KeepAliveMix(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test")
	}

	for _, v := range []config.Variant{config.VariantReactor, config.VariantPooled} {
		t.Run(string(v), func(t *testing.T) {
			addr := serve(t, v)

			const clients, requests = 32, 60
			errs := make(chan error, clients)
			var wg sync.WaitGroup
			for c := 0; c < clients; c++ {
				wg.Add(1)
				go func(id int) {
					defer wg.Done()
					errs <- runClient(addr, id, requests)
				}(c)
			}
			wg.Wait()
			close(errs)

			for err := range errs {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStress_SingleServesSequentially(t *testing.T) {
	addr := serve(t, config.VariantSingle)

	for c := 0; c < 8; c++ {
		require.NoError(t, runClient(addr, c, 12))
	}
}

package main

import (
	"flag"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"
)

func main() {
	var (
		server      = flag.String("server", "127.0.0.1:9090", "poolnetd TCP HOST:PORT")
		payload     = flag.String("payload", "ping\n", "Line to echo on each round trip")
		concurrency = flag.Int("concurrency", 200, "Number of concurrent workers")
		requests    = flag.Int("requests", 20000, "Total number of connect+echo+close cycles")
		timeout     = flag.Duration("timeout", 2*time.Second, "Per-cycle timeout")
		recvSize    = flag.Int("recv-size", 4096, "TCP receive buffer size")
		keepAlive   = flag.Bool("keepalive", false, "Reuse one connection per worker instead of reconnecting every cycle")
	)
	flag.Parse()

	addr, err := net.ResolveTCPAddr("tcp", *server)
	if err != nil {
		panic(err)
	}

	payloadBytes := []byte(*payload)

	conc := *concurrency
	if conc < 1 {
		conc = 1
	}
	total := *requests
	if total < 1 {
		total = 1
	}
	per := total / conc
	rem := total % conc

	lat := make([]float64, 0, total)
	var latMu sync.Mutex
	var failures int
	var failuresMu sync.Mutex

	t0 := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < conc; i++ {
		n := per
		if i < rem {
			n++
		}
		if n <= 0 {
			continue
		}
		wg.Add(1)
		go func(num int) {
			defer wg.Done()
			worker(addr, payloadBytes, *recvSize, *timeout, *keepAlive, num, &lat, &latMu, &failures, &failuresMu)
		}(n)
	}
	wg.Wait()
	elapsed := time.Since(t0).Seconds()

	if len(lat) == 0 {
		fmt.Printf("no successful cycles (failures=%d)\n", failures)
		return
	}
	sort.Float64s(lat)
	p50 := percentile(lat, 50)
	p95 := percentile(lat, 95)
	p99 := percentile(lat, 99)
	qps := float64(len(lat)) / elapsed

	fmt.Printf("server=%s concurrency=%d requests=%d failures=%d keepalive=%v\n", *server, conc, len(lat), failures, *keepAlive)
	fmt.Printf("elapsed_s=%.3f qps=%.1f\n", elapsed, qps)
	fmt.Printf("latency_ms p50=%.3f p95=%.3f p99=%.3f min=%.3f max=%.3f\n", p50, p95, p99, lat[0], lat[len(lat)-1])
}

// worker runs num connect+echo+close cycles, appending each successful
// round-trip latency (ms) to lat under latMu.
func worker(
	addr *net.TCPAddr,
	payload []byte,
	recvSize int,
	timeout time.Duration,
	keepAlive bool,
	num int,
	lat *[]float64,
	latMu *sync.Mutex,
	failures *int,
	failuresMu *sync.Mutex,
) {
	buf := make([]byte, recvSize)

	var conn *net.TCPConn
	if keepAlive {
		c, err := net.DialTCP("tcp", nil, addr)
		if err != nil {
			failuresMu.Lock()
			*failures += num
			failuresMu.Unlock()
			return
		}
		defer c.Close()
		conn = c
	}

	for j := 0; j < num; j++ {
		start := time.Now()
		ms, ok := runCycle(addr, conn, payload, buf, timeout)
		if !ok {
			failuresMu.Lock()
			*failures++
			failuresMu.Unlock()
			continue
		}
		_ = start
		latMu.Lock()
		*lat = append(*lat, ms)
		latMu.Unlock()
	}
}

// runCycle performs one echo round trip, opening a fresh connection unless
// conn (a keepalive connection) is already established.
func runCycle(addr *net.TCPAddr, conn *net.TCPConn, payload, buf []byte, timeout time.Duration) (float64, bool) {
	c := conn
	if c == nil {
		dialed, err := net.DialTCP("tcp", nil, addr)
		if err != nil {
			return 0, false
		}
		defer dialed.Close()
		c = dialed
	}

	start := time.Now()
	_ = c.SetDeadline(time.Now().Add(timeout))
	if _, err := c.Write(payload); err != nil {
		return 0, false
	}
	n, err := c.Read(buf)
	if err != nil || n == 0 {
		return 0, false
	}
	return float64(time.Since(start).Microseconds()) / 1000.0, true
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	idx := int(float64(len(sorted))*float64(p)/100.0) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

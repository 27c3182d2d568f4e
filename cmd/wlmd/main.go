// Package main is the controller daemon: it accepts framed RPCs from
// clients and compute-node daemons, places jobs against the block
// catalogue, and forwards multi-target operations through the fan-out
// tree. Grounded on cmd/authn/main.go's flag/signal/logging shape
// (teacher), wired to this repo's own subsystems in place of authn's.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gridforge/wlmcore/auth"
	"github.com/gridforge/wlmcore/catalog"
	"github.com/gridforge/wlmcore/cmn/nlog"
	"github.com/gridforge/wlmcore/ctrlclient"
	"github.com/gridforge/wlmcore/imageacl"
	"github.com/gridforge/wlmcore/metrics"
	"github.com/gridforge/wlmcore/placement"
	"github.com/gridforge/wlmcore/store"
	"github.com/gridforge/wlmcore/wire"
	"github.com/gridforge/wlmcore/xport"
)

var (
	build     string
	buildtime string

	listenAddr   string
	metricsAddr  string
	storePath    string
	logDir       string
	machineNodes int
	nodesFlag    string
)

func init() {
	flag.StringVar(&listenAddr, "listen", "0.0.0.0:6817", "controller RPC listen address")
	flag.StringVar(&metricsAddr, "metrics-listen", "0.0.0.0:9100", "Prometheus exposition address")
	flag.StringVar(&storePath, "store", ":memory:", "durable catalogue/job store path")
	flag.StringVar(&logDir, "log-dir", "", "log directory (empty: stderr only)")
	flag.IntVar(&machineNodes, "machine-nodes", 64, "total addressable node count backing the availability bitmap")
	flag.StringVar(&nodesFlag, "nodes", "", "comma-separated ip:port list of compute-node daemons, indexed by node id (default: 127.0.0.1:8000+i)")
}

func main() {
	if len(os.Args) == 2 && os.Args[1] == "version" {
		printVer()
		os.Exit(0)
	}
	if len(os.Args) == 1 || (len(os.Args) == 2 && strings.Contains(os.Args[1], "help")) {
		printVer()
		flag.PrintDefaults()
		os.Exit(0)
	}
	flag.Parse()
	installSignalHandler()
	nlog.SetDestination(logDir, "wlmd", logDir == "")
	nlog.Infof("wlmd starting (build %s, %s)", build, buildtime)

	db, err := store.Open(storePath)
	if err != nil {
		nlog.Errorf("wlmd: open store %q: %v", storePath, err)
		os.Exit(1)
	}
	defer db.Close()

	cat := catalog.New()
	if err := loadCatalogue(cat, db); err != nil {
		nlog.Errorf("wlmd: restore catalogue: %v", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(cat)
	placementMetrics := metrics.NewPlacement(reg)
	// metrics.Controller counts ctrlclient.SendRecvController's standby
	// retries; this daemon uses ctrlclient only for node-directed
	// SendRecvNode/SendOnlyNode calls, which never take that path, so it
	// does not instantiate one. cmd/wlmctl wires it on the caller side.

	engine := &placement.Engine{
		Catalogue: cat,
		ACL:       imageacl.New(nil),
	}

	ln, err := xport.ListenOn(mustParseAddr(listenAddr))
	if err != nil {
		nlog.Errorf("wlmd: listen on %s: %v", listenAddr, err)
		os.Exit(1)
	}
	defer ln.Close()

	provider := auth.Provider(auth.NoneProvider{})
	srv := &server{
		cat:          cat,
		engine:       engine,
		store:        db,
		auth:         provider,
		metrics:      placementMetrics,
		rpc:          ctrlclient.New(ctrlclient.Endpoints{}, provider),
		nodeAddrs:    parseNodeAddrs(nodesFlag, machineNodes),
		machineNodes: machineNodes,
	}

	go serveMetrics(reg)
	go snapshotLoop(cat, db)
	nlog.Infof("wlmd: controller RPC listening on %s", listenAddr)
	srv.Serve(ln)
}

// snapshotLoop periodically persists the live catalogue, so blocks mutated
// in memory by the placement engine (state transitions, dynamic creation)
// survive a restart even absent a per-request save.
func snapshotLoop(cat *catalog.Catalogue, db *store.Store) {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for range t.C {
		if err := db.SnapshotCatalogue(cat); err != nil {
			nlog.Warningf("wlmd: periodic catalogue snapshot: %v", err)
		}
	}
}

func loadCatalogue(cat *catalog.Catalogue, db *store.Store) error {
	blocks, err := db.LoadBlocks()
	if err != nil {
		return err
	}
	cat.Lock()
	defer cat.Unlock()
	for _, b := range blocks {
		cat.Add(b)
	}
	nlog.Infof("wlmd: restored %d blocks from store", len(blocks))
	return nil
}

func serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(metricsAddr, mux); err != nil {
		nlog.Errorf("wlmd: metrics server: %v", err)
	}
}

// parseNodeAddrs builds the bit-index -> compute-node-address table the
// dispatch fan-out (cmd/wlmd/server.go's targetsForBlock) uses to turn a
// block's bitmap into real RPC targets. An empty flag falls back to a
// synthetic localhost table, useful for exercising the fan-out path
// without a real compute-node fleet.
func parseNodeAddrs(s string, n int) []wire.Addr {
	if strings.TrimSpace(s) == "" {
		out := make([]wire.Addr, n)
		for i := range out {
			out[i] = wire.Addr{IP: [4]byte{127, 0, 0, 1}, Port: uint16(8000 + i)}
		}
		return out
	}
	parts := strings.Split(s, ",")
	out := make([]wire.Addr, 0, len(parts))
	for _, p := range parts {
		addr, err := xport.ParseHostPort(strings.TrimSpace(p))
		if err != nil {
			nlog.Errorf("wlmd: invalid --nodes entry %q: %v", p, err)
			continue
		}
		out = append(out, addr)
	}
	return out
}

func mustParseAddr(s string) wire.Addr {
	addr, err := xport.ParseHostPort(s)
	if err != nil {
		nlog.Errorf("wlmd: invalid listen address %q: %v", s, err)
		os.Exit(1)
	}
	return addr
}

func installSignalHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		nlog.Flush(true)
		os.Exit(0)
	}()
}

func printVer() {
	fmt.Printf("wlmd version (build %s)\n", buildtime)
}

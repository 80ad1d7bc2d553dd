// Command tzrecorder is a passive network recorder for Tezos P2P nodes: a
// kernel capture agent observes each tracked node's TCP byte stream, a
// per-node pipeline reassembles and decrypts the Tezos wire protocol, and
// the decoded history is served over HTTP alongside each node's ingested
// syslog feed (spec §1-§2).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"tzrecorder/domain/node"
	transport "tzrecorder/infrastructure/capture"
	"tzrecorder/infrastructure/config"
)

var opt struct {
	RunBPF    bool
	Config    string
	BPFObject string

	// AgentInternal is set only on the re-exec'd child process spawned by
	// --run-bpf; it is not part of the documented CLI surface.
	AgentInternal bool

	Help bool
}

func init() {
	pflag.BoolVar(&opt.RunBPF, "run-bpf", false, "spawn the capture agent as a child instead of connecting to an already-running one")
	pflag.StringVar(&opt.Config, "config", "./config.toml", "path to the TOML configuration file")
	pflag.StringVar(&opt.BPFObject, "bpf-object", "/usr/lib/tzrecorder/probe.o", "path to the compiled eBPF probe object (bpf2go output of probe.c)")
	pflag.BoolVar(&opt.AgentInternal, "agent-internal", false, "")
	pflag.CommandLine.MarkHidden("agent-internal")
	pflag.BoolVarP(&opt.Help, "help", "h", false, "show this help text")
}

// shutdownGrace is the hard timeout spec §5 gives graceful shutdown
// before the process is forced to exit anyway.
const shutdownGrace = 5 * time.Second

func main() {
	pflag.Parse()
	if opt.Help {
		fmt.Printf("usage: %s [options]\n\noptions:\n%s", os.Args[0], pflag.CommandLine.FlagUsages())
		os.Exit(0)
	}
	os.Exit(run())
}

func run() int {
	root, err := config.Load(opt.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if opt.AgentInternal {
		return runAgentChild(ctx, root)
	}

	return runRecorder(ctx, cancel, root)
}

// runRecorder is the consumer-side process: it owns every node's store,
// reassembly pipeline, and query surface, and either spawns or connects to
// the capture agent over the Unix control socket.
func runRecorder(ctx context.Context, cancel context.CancelFunc, root node.Root) int {
	nodes := make([]*nodeRuntime, 0, len(root.Nodes))
	for _, cfg := range root.Nodes {
		nr, err := newNodeRuntime(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: node %s: %v\n", cfg.Name, err)
			return 1
		}
		defer nr.store.Close()
		nodes = append(nodes, nr)
	}

	var agentCmd *exec.Cmd
	if opt.RunBPF {
		cmd, err := spawnAgentChild(opt.Config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 2
		}
		agentCmd = cmd
		defer func() {
			cancel()
			_ = agentCmd.Wait()
		}()
	}

	conn, err := dialAgentSocket(ctx, root.SocketPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: connect to capture agent: %v\n", err)
		return 3
	}
	src := transport.NewSource(conn)
	defer src.Close()
	go func() {
		<-ctx.Done()
		src.Close()
	}()

	group, gctx := errgroup.WithContext(ctx)
	for _, nr := range nodes {
		nr := nr
		group.Go(func() error { return nr.runWorker(gctx) })
		group.Go(func() error { return nr.runStoreWriter(gctx) })
		group.Go(func() error { return nr.runHTTP(gctx) })
		group.Go(func() error { return nr.runSyslog(gctx) })
		group.Go(func() error { return nr.runReaper(gctx) })
		group.Go(func() error { return nr.runTrafficStats(gctx) })
	}
	group.Go(func() error { return routeEvents(gctx, src, nodes) })

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 3
		}
		return 0
	case <-ctx.Done():
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
				return 3
			}
			return 0
		case <-time.After(shutdownGrace):
			fmt.Fprintln(os.Stderr, "shutdown timed out, forcing exit")
			return 0
		}
	}
}

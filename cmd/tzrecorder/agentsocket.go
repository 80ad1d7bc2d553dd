package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"tzrecorder/application/captureagent"
	"tzrecorder/application/counters"
	domcapture "tzrecorder/domain/capture"
	"tzrecorder/domain/node"
	transport "tzrecorder/infrastructure/capture"
	"tzrecorder/infrastructure/capture/agent"
	"tzrecorder/infrastructure/obslog"
)

// dialAgentSocket connects to the capture agent's Unix control socket
// (spec §6 "Capture-agent socket"), retrying briefly since a just-spawned
// agent child may not have created the socket file yet.
func dialAgentSocket(ctx context.Context, socketPath string) (net.Conn, error) {
	deadline := time.Now().Add(5 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.Dial("unix", socketPath)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("dial %s: %w", socketPath, lastErr)
}

// spawnAgentChild re-execs this binary in agent-internal mode so the
// privileged eBPF probe installation runs in its own process (spec §6
// "--run-bpf: spawn the capture agent as a child"). The child itself
// (runAgentChild) removes a stale socket file left behind by a previous run.
func spawnAgentChild(configPath string) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable path: %w", err)
	}
	cmd := exec.Command(exe, "--agent-internal", "--config", configPath, "--bpf-object", opt.BPFObject)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start agent child: %w", err)
	}
	return cmd, nil
}

// runAgentChild is the entry point when this binary is re-exec'd with
// --agent-internal: it installs the eBPF probes, listens on the control
// socket for the single consumer connection, and forwards events until
// ctx is cancelled. It returns the process exit code directly (spec §6
// exit codes 2 "privilege error", 3 "agent failure").
func runAgentChild(ctx context.Context, root node.Root) int {
	log := obslog.Default("capture-agent")

	if unix.Geteuid() != 0 {
		fmt.Fprintln(os.Stderr, "fatal: capture agent requires CAP_BPF (run as root)")
		return 2
	}

	probes, err := agent.LoadProbes(opt.BPFObject)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: install probes: %v\n", err)
		return 2
	}
	defer probes.Close()

	socketPath := root.SocketPath()
	_ = os.Remove(socketPath)
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: listen on %s: %v\n", socketPath, err)
		return 3
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		fmt.Fprintf(os.Stderr, "fatal: accept control connection: %v\n", err)
		return 3
	}
	defer conn.Close()

	cnt := counters.New("capture-agent")
	ag := agent.New(root.Nodes, log, cnt)
	runErr := ag.Run(ctx, probes, conn)
	logDropped(log, cnt)
	if runErr != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "fatal: agent: %v\n", runErr)
		return 3
	}
	return 0
}

// logDropped reports the agent's lifetime Data-event drop count through
// the application/captureagent.Dropped port on shutdown, the one place an
// operator can see how much was lost to control-socket backpressure
// without a metrics scraper attached.
func logDropped(log *obslog.Logger, dropped captureagent.Dropped) {
	log.Info().Uint64("dropped", dropped.DroppedCount()).Msg("capture agent shutting down")
}

// routeEvents reads events off src and delivers each one to the owning
// node's worker channel, replaying Bind events through its own
// process-discovery table so it can attribute every later event to a
// node without the wire frame itself naming one (spec §4.2, component B).
func routeEvents(ctx context.Context, src *transport.Source, nodes []*nodeRuntime) error {
	byName := make(map[string]*nodeRuntime, len(nodes))
	cfgs := make([]node.Config, 0, len(nodes))
	for _, nr := range nodes {
		byName[nr.cfg.Name] = nr
		cfgs = append(cfgs, nr.cfg)
	}
	disc := agent.NewDiscovery(cfgs)

	for {
		ev, err := src.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read control socket: %w", err)
		}

		if ev.Kind == domcapture.KindBind {
			if port, ok := parseAddrPort(ev.Addr); ok {
				disc.OnBind(ev.PID, port)
			}
		}

		n, ok := disc.NodeFor(ev.PID)
		if !ok {
			continue
		}
		nr, ok := byName[n.Name]
		if !ok {
			continue
		}
		nr.deliver(ctx, ev)
	}
}

func parseAddrPort(addr string) (uint16, bool) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, false
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(p), true
}

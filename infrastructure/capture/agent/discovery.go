// Package agent implements the kernel-side capture agent (spec §4.1): a
// privileged process discovery + syscall event forwarder over
// infrastructure/capture/wire. Only the Linux kernel side of it (eBPF
// program attachment, ring buffer reads) genuinely requires a kernel; the
// process-discovery and backpressure logic below are plain Go and carry
// their own tests.
package agent

import "tzrecorder/domain/node"

// Discovery implements spec §4.1 "Process discovery": the agent starts
// with no target pid, watches every Bind system-wide, and promotes a pid
// to "tracked" the moment its bind(2) port matches a configured node's
// p2p_port. A node that already bound before the agent started cannot be
// discovered retroactively — this is the documented operational
// constraint, not a gap in this logic.
type Discovery struct {
	byPort  map[uint16]node.Config
	tracked map[int32]node.Config
}

func NewDiscovery(nodes []node.Config) *Discovery {
	byPort := make(map[uint16]node.Config, len(nodes))
	for _, n := range nodes {
		byPort[n.P2PPort] = n
	}
	return &Discovery{
		byPort:  byPort,
		tracked: make(map[int32]node.Config),
	}
}

// OnBind records pid as tracked if port matches a configured node,
// returning the matched config. Idempotent: rebinding the same pid to the
// same tracked port is a no-op.
func (d *Discovery) OnBind(pid int32, port uint16) (node.Config, bool) {
	n, ok := d.byPort[port]
	if !ok {
		return node.Config{}, false
	}
	d.tracked[pid] = n
	return n, true
}

// IsTracked reports whether pid has been attributed to a configured node.
func (d *Discovery) IsTracked(pid int32) bool {
	_, ok := d.tracked[pid]
	return ok
}

// NodeFor returns the node a tracked pid belongs to.
func (d *Discovery) NodeFor(pid int32) (node.Config, bool) {
	n, ok := d.tracked[pid]
	return n, ok
}

// Forget drops a pid from the tracked set, e.g. on process exit.
func (d *Discovery) Forget(pid int32) {
	delete(d.tracked, pid)
}

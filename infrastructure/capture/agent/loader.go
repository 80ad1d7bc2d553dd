//go:build linux

package agent

import (
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"
)

// probeSyscalls are the syscalls spec §4.1 requires the agent to
// intercept. Each is attached as a kretprobe so the probe runs after the
// kernel has filled in the caller's buffer/sockaddr, mirroring
// other_examples' ocx-backend cmd/probe main.go (link.Kretprobe("sys_read", ...)).
var probeSyscalls = []string{
	"bind", "listen", "accept4", "connect",
	"read", "recvfrom", "write", "sendto", "close",
}

// Probes loads the pre-compiled eBPF object at objPath (built out-of-band
// by bpf2go/clang from probe.c in this package) and attaches a kretprobe
// per tracked syscall plus a ring buffer reader for the events map. This
// is the only genuinely kernel-dependent part of the agent; it has no unit
// test (it cannot run without CAP_BPF and a matching kernel) and exists to satisfy Agent.Run's RingReader/io.Writer seam with
// the real thing.
type Probes struct {
	collection *ebpf.Collection
	links      []link.Link
	reader     *ringbuf.Reader
}

func LoadProbes(objPath string) (*Probes, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("agent: remove memlock rlimit: %w", err)
	}

	spec, err := ebpf.LoadCollectionSpec(objPath)
	if err != nil {
		return nil, fmt.Errorf("agent: load collection spec %s: %w", objPath, err)
	}
	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("agent: load collection: %w", err)
	}

	p := &Probes{collection: coll}
	prog, ok := coll.Programs["on_syscall_ret"]
	if !ok {
		p.Close()
		return nil, fmt.Errorf("agent: object %s missing program %q", objPath, "on_syscall_ret")
	}
	for _, name := range probeSyscalls {
		l, err := link.Kretprobe(name, prog, nil)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("agent: attach kretprobe %s: %w", name, err)
		}
		p.links = append(p.links, l)
	}

	events, ok := coll.Maps["events"]
	if !ok {
		p.Close()
		return nil, fmt.Errorf("agent: object %s missing ring buffer map %q", objPath, "events")
	}
	rd, err := ringbuf.NewReader(events)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("agent: open ring buffer reader: %w", err)
	}
	p.reader = rd

	return p, nil
}

// Read implements RingReader.
func (p *Probes) Read() ([]byte, error) {
	rec, err := p.reader.Read()
	if err != nil {
		if err == ringbuf.ErrClosed {
			return nil, ErrClosed
		}
		return nil, err
	}
	return rec.RawSample, nil
}

func (p *Probes) Close() error {
	if p.reader != nil {
		p.reader.Close()
	}
	for _, l := range p.links {
		l.Close()
	}
	if p.collection != nil {
		p.collection.Close()
	}
	return nil
}

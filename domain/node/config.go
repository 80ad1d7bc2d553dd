// Package node holds the immutable, once-loaded configuration of a tracked
// Tezos node.
package node

// Identity describes where to find a node's identity blob and the p2p
// port the kernel capture agent must match on bind(2) to attribute syscalls
// to this node.
type Identity struct {
	Path string `toml:"path"`
	Port uint16 `toml:"port"`
}

// Log describes the syslog UDP ingest endpoint for a node.
type Log struct {
	Port uint16 `toml:"port"`
}

// Config is one `[[nodes]]` entry from the TOML configuration file.
//
// It is immutable after load: nothing in the recorder mutates a Config
// once Runtime construction has read it.
type Config struct {
	Name               string   `toml:"name"`
	P2PPort            uint16   `toml:"p2p_port"`
	Identity           Identity `toml:"identity"`
	DB                 string   `toml:"db"`
	HTTPV2             uint16   `toml:"http_v2"`
	HTTPV3             uint16   `toml:"http_v3"`
	Log                Log      `toml:"log"`
	MaxDBBytes         uint64   `toml:"max_db_bytes"`
	IdleTimeoutSeconds uint32   `toml:"idle_timeout_seconds"`
}

// HTTPPort returns the port the HTTP query surface should bind to for this
// node, preferring the v3 port and falling back to v2.
func (c Config) HTTPPort() uint16 {
	if c.HTTPV3 != 0 {
		return c.HTTPV3
	}
	return c.HTTPV2
}

// DefaultIdleTimeoutSeconds is the idle-eviction timeout (spec §3
// "Lifecycles... destroyed ... after an idle eviction (configurable)") used
// when a node entry leaves idle_timeout_seconds unset.
const DefaultIdleTimeoutSeconds = 600

// IdleTimeout returns the configured idle-eviction timeout, or
// DefaultIdleTimeoutSeconds if the node entry didn't set one.
func (c Config) IdleTimeout() uint32 {
	if c.IdleTimeoutSeconds != 0 {
		return c.IdleTimeoutSeconds
	}
	return DefaultIdleTimeoutSeconds
}

// Root is the top-level TOML document: a legacy combined RPC port plus the
// per-node entries.
type Root struct {
	RPCPort     uint16   `toml:"rpc_port"`
	AgentSocket string   `toml:"agent_socket"`
	Nodes       []Config `toml:"nodes"`
}

// DefaultAgentSocket is the Unix control-socket path used when the config
// file leaves agent_socket unset (spec §6 "Capture-agent socket").
const DefaultAgentSocket = "/run/tzrecorder/agent.sock"

// SocketPath returns the configured agent socket path, or
// DefaultAgentSocket if the document didn't set one.
func (r Root) SocketPath() string {
	if r.AgentSocket != "" {
		return r.AgentSocket
	}
	return DefaultAgentSocket
}

// ByName returns the node config with the given name, if present.
func (r Root) ByName(name string) (Config, bool) {
	for _, n := range r.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Config{}, false
}

// ByP2PPort returns the node config whose p2p_port matches, if present. The
// capture agent uses this to attribute a bind(2) syscall to a tracked node.
func (r Root) ByP2PPort(port uint16) (Config, bool) {
	for _, n := range r.Nodes {
		if n.P2PPort == port {
			return n, true
		}
	}
	return Config{}, false
}

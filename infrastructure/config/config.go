// Package config loads the TOML configuration file (spec §6
// "Configuration file") into a domain/node.Root, replacing the teacher's
// JSON infrastructure/settings with github.com/pelletier/go-toml/v2 — the
// wire format the teacher used doesn't match §6's TOML shape, but the
// "one small struct, one Load" shape is kept.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"tzrecorder/domain/node"
)

// ErrNoNodes is returned by Load when the document defines no [[nodes]]
// entries, which is never a useful configuration to run.
var ErrNoNodes = errors.New("config: no [[nodes]] entries")

// Load reads and parses the TOML configuration file at path.
func Load(path string) (node.Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return node.Root{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var root node.Root
	if err := toml.Unmarshal(data, &root); err != nil {
		return node.Root{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := validate(root); err != nil {
		return node.Root{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return root, nil
}

func validate(root node.Root) error {
	if len(root.Nodes) == 0 {
		return ErrNoNodes
	}
	seenNames := make(map[string]bool, len(root.Nodes))
	seenPorts := make(map[uint16]bool, len(root.Nodes))
	for _, n := range root.Nodes {
		if n.Name == "" {
			return errors.New("node entry missing name")
		}
		if seenNames[n.Name] {
			return fmt.Errorf("duplicate node name %q", n.Name)
		}
		seenNames[n.Name] = true

		if n.P2PPort == 0 {
			return fmt.Errorf("node %q: p2p_port is required", n.Name)
		}
		if seenPorts[n.P2PPort] {
			return fmt.Errorf("duplicate p2p_port %d", n.P2PPort)
		}
		seenPorts[n.P2PPort] = true

		if n.Identity.Path == "" {
			return fmt.Errorf("node %q: identity.path is required", n.Name)
		}
		if n.DB == "" {
			return fmt.Errorf("node %q: db is required", n.Name)
		}
		if n.HTTPPort() == 0 {
			return fmt.Errorf("node %q: http_v2 or http_v3 is required", n.Name)
		}
	}
	return nil
}

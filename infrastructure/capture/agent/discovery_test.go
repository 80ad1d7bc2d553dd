package agent

import (
	"testing"

	"tzrecorder/domain/node"
)

func TestDiscovery_OnBind_TracksMatchingPort(t *testing.T) {
	d := NewDiscovery([]node.Config{{Name: "mainnet-1", P2PPort: 9732}})

	n, ok := d.OnBind(100, 9732)
	if !ok {
		t.Fatal("expected port 9732 to match")
	}
	if n.Name != "mainnet-1" {
		t.Errorf("matched node = %q", n.Name)
	}
	if !d.IsTracked(100) {
		t.Error("expected pid 100 to be tracked")
	}
}

func TestDiscovery_OnBind_UnmatchedPortIsIgnored(t *testing.T) {
	d := NewDiscovery([]node.Config{{Name: "mainnet-1", P2PPort: 9732}})
	_, ok := d.OnBind(100, 4321)
	if ok {
		t.Fatal("expected port 4321 not to match any node")
	}
	if d.IsTracked(100) {
		t.Error("pid should not be tracked after an unmatched bind")
	}
}

func TestDiscovery_Forget_RemovesTracking(t *testing.T) {
	d := NewDiscovery([]node.Config{{Name: "mainnet-1", P2PPort: 9732}})
	d.OnBind(100, 9732)
	d.Forget(100)
	if d.IsTracked(100) {
		t.Error("expected pid to no longer be tracked after Forget")
	}
}

func TestDiscovery_NodeFor(t *testing.T) {
	d := NewDiscovery([]node.Config{{Name: "mainnet-1", P2PPort: 9732}})
	d.OnBind(100, 9732)
	n, ok := d.NodeFor(100)
	if !ok || n.Name != "mainnet-1" {
		t.Errorf("NodeFor(100) = %+v, %v", n, ok)
	}
	if _, ok := d.NodeFor(999); ok {
		t.Error("expected untracked pid to return ok=false")
	}
}

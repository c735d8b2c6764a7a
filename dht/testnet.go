package dht

import "fmt"

// Testnet is a small local harness of nodes that bootstrap off node 0,
// grounded on the reference implementation's Testnet used by its own
// scenario tests (S1-S7).
type Testnet struct {
	Nodes []*Facade
}

// NewTestnet builds count nodes on ephemeral ports; every node after the
// first bootstraps off node 0's bound address.
func NewTestnet(count int) (*Testnet, error) {
	if count <= 0 {
		return &Testnet{}, nil
	}
	first, err := New(Config{})
	if err != nil {
		return nil, err
	}
	if err := first.Check(); err != nil {
		first.Shutdown()
		return nil, err
	}
	nodes := []*Facade{first}
	bootstrap := first.GetInfo().LocalAddr.String()

	for i := 1; i < count; i++ {
		f, err := New(Config{Bootstrap: []string{bootstrap}})
		if err != nil {
			for _, n := range nodes {
				n.Shutdown()
			}
			return nil, fmt.Errorf("testnet: node %d: %w", i, err)
		}
		nodes = append(nodes, f)
	}
	return &Testnet{Nodes: nodes}, nil
}

// Shutdown stops every node in the testnet.
func (t *Testnet) Shutdown() {
	for _, n := range t.Nodes {
		n.Shutdown()
	}
}

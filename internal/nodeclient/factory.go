package nodeclient

import (
	"fmt"

	"github.com/moguard/panel/internal/domain/node"
)

// New builds the dialect-specific Client for a node's kind (§4.B).
func New(kind node.Kind, host string) (Client, error) {
	switch kind {
	case node.KindMarzban:
		return NewMarzban(host), nil
	case node.KindMarzneshin:
		return NewMarzneshin(host), nil
	case node.KindRustneshin:
		return NewRustneshin(host), nil
	default:
		return nil, fmt.Errorf("nodeclient: unknown node kind %q", kind)
	}
}

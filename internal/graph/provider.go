package graph

// Reader is the read-only view of a process graph used by classification
// and chooser construction.
type Reader interface {
	// Nodes returns all nodes in document order.
	Nodes() []*Node
	// Node returns the node with the given id, or nil.
	Node(id string) *Node
	// Outgoing returns the edges leaving id in declaration order.
	Outgoing(id string) []*Edge
	// Incoming returns the edges entering id in declaration order.
	Incoming(id string) []*Edge
}

// Provider is the capability set the generator needs from a BPMN toolkit.
// Implementations mutate in place and are not safe for concurrent use.
type Provider interface {
	Reader

	// NewCondition creates a routing expression object from a FEEL body.
	NewCondition(body string) *Condition
	// SetCondition sets the expression of an edge; nil clears it.
	SetCondition(edgeID string, cond *Condition) error
	// SetDefault marks edgeID as the default flow of gatewayID. An empty
	// edgeID removes the default.
	SetDefault(gatewayID, edgeID string) error
	// SetFormBinding attaches or replaces the form bound to a node.
	SetFormBinding(nodeID string, binding FormBinding) error
	// Serialize renders the whole graph in the provider's interchange format.
	Serialize() ([]byte, error)
}

package graph

// Kind classifies a process node.
type Kind string

const (
	KindStartEvent        Kind = "start-event"
	KindUserTask          Kind = "user-task"
	KindCallActivity      Kind = "call-activity"
	KindSubProcess        Kind = "sub-process"
	KindTask              Kind = "task"
	KindEndEvent          Kind = "end-event"
	KindExclusiveGateway  Kind = "exclusive-gateway"
	KindInclusiveGateway  Kind = "inclusive-gateway"
	KindParallelGateway   Kind = "parallel-gateway"
	KindEventBasedGateway Kind = "event-based-gateway"
	KindOther             Kind = "other"
)

// IsGateway reports whether k is any gateway kind.
func (k Kind) IsGateway() bool {
	switch k {
	case KindExclusiveGateway, KindInclusiveGateway, KindParallelGateway, KindEventBasedGateway:
		return true
	}
	return false
}

// IsTask reports whether k is an activity a user can be routed to.
func (k Kind) IsTask() bool {
	switch k {
	case KindUserTask, KindCallActivity, KindSubProcess, KindTask:
		return true
	}
	return false
}

// BindingMode selects how a form is referenced from its node.
type BindingMode string

const (
	// BindingLinked references a deployed form by its id (formId).
	BindingLinked BindingMode = "linked"
	// BindingKey references the form through a formKey.
	BindingKey BindingMode = "key"
)

// FormBinding associates a generated form with a node.
type FormBinding struct {
	FormID string      `json:"form_id"`
	Mode   BindingMode `json:"mode"`
}

// Node is a flow element of the process.
type Node struct {
	ID      string       `json:"id"`
	Kind    Kind         `json:"kind"`
	Name    string       `json:"name,omitempty"`
	X       float64      `json:"x"`
	Y       float64      `json:"y"`
	Default string       `json:"default,omitempty"` // default outgoing edge id (gateways)
	Form    *FormBinding `json:"form,omitempty"`
}

// DisplayName returns the node name, or its id when unnamed.
func (n *Node) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// Condition is a FEEL routing expression. Body excludes the leading "=".
type Condition struct {
	Body string `json:"body"`
}

// Expression renders the condition the way the workflow engine reads it.
func (c *Condition) Expression() string {
	if c == nil || c.Body == "" {
		return ""
	}
	return "=" + c.Body
}

// Edge is a sequence flow.
type Edge struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	Target    string     `json:"target"`
	Name      string     `json:"name,omitempty"`
	Condition *Condition `json:"condition,omitempty"`
	Default   bool       `json:"default,omitempty"`
}

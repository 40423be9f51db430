// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package wmipc

// Rect is a pixel rectangle as reported by the WM.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Output is one entry of a GET_OUTPUTS reply.
type Output struct {
	Name             string `json:"name"`
	Make             string `json:"make,omitempty"`
	Model            string `json:"model,omitempty"`
	Active           bool   `json:"active"`
	Primary          bool   `json:"primary"`
	Rect             Rect   `json:"rect"`
	CurrentWorkspace string `json:"current_workspace,omitempty"`
}

// Workspace is one entry of a GET_WORKSPACES reply.
type Workspace struct {
	Num     int    `json:"num"`
	Name    string `json:"name"`
	Visible bool   `json:"visible"`
	Focused bool   `json:"focused"`
	Urgent  bool   `json:"urgent"`
	Rect    Rect   `json:"rect"`
	Output  string `json:"output"`
}

// Node is one container in a GET_TREE reply. The tree nests: root →
// outputs → workspaces → containers/windows.
type Node struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
	Type string `json:"type"`

	// Num is the workspace number; present only on workspace nodes,
	// -1 for named workspaces.
	Num int `json:"num,omitempty"`

	// Output is set on workspace nodes delivered in workspace events.
	Output string `json:"output,omitempty"`

	AppID   string `json:"app_id,omitempty"`
	PID     int    `json:"pid,omitempty"`
	Focused bool   `json:"focused"`
	Urgent  bool   `json:"urgent"`

	// Marks are the WM marks set on this container.
	Marks []string `json:"marks,omitempty"`

	Rect          Rect    `json:"rect"`
	Nodes         []*Node `json:"nodes,omitempty"`
	FloatingNodes []*Node `json:"floating_nodes,omitempty"`

	// WindowProperties carries X11 class/instance under XWayland.
	WindowProperties *WindowProperties `json:"window_properties,omitempty"`
}

// WindowProperties is X11 metadata present on XWayland windows.
type WindowProperties struct {
	Class    string `json:"class,omitempty"`
	Instance string `json:"instance,omitempty"`
	Title    string `json:"title,omitempty"`
}

// Walk visits the node and all descendants (tiled and floating) in
// depth-first order. Returning false from visit stops the walk.
func (n *Node) Walk(visit func(*Node) bool) bool {
	if !visit(n) {
		return false
	}
	for _, child := range n.Nodes {
		if !child.Walk(visit) {
			return false
		}
	}
	for _, child := range n.FloatingNodes {
		if !child.Walk(visit) {
			return false
		}
	}
	return true
}

// Version is the GET_VERSION reply.
type Version struct {
	Major                int    `json:"major"`
	Minor                int    `json:"minor"`
	Patch                int    `json:"patch"`
	HumanReadable        string `json:"human_readable"`
	LoadedConfigFileName string `json:"loaded_config_file_name,omitempty"`
}

// subscribeReply is the SUBSCRIBE acknowledgment.
type subscribeReply struct {
	Success bool `json:"success"`
}

// WindowEvent is the payload of a "window" subscription event.
type WindowEvent struct {
	Change    string `json:"change"`
	Container *Node  `json:"container"`
}

// WorkspaceEvent is the payload of a "workspace" subscription event.
// Old is set on "focus" (previously focused workspace) and "rename"
// events; it is null otherwise.
type WorkspaceEvent struct {
	Change  string `json:"change"`
	Current *Node  `json:"current"`
	Old     *Node  `json:"old,omitempty"`
}

// OutputEvent is the payload of an "output" subscription event. The WM
// reports no detail beyond the change string.
type OutputEvent struct {
	Change string `json:"change"`
}

// ModeEvent is the payload of a "mode" subscription event.
type ModeEvent struct {
	Change      string `json:"change"`
	PangoMarkup bool   `json:"pango_markup"`
}

// BindingEvent is the payload of a "binding" subscription event.
type BindingEvent struct {
	Change  string `json:"change"`
	Binding struct {
		Command        string   `json:"command"`
		Symbol         string   `json:"symbol,omitempty"`
		InputType      string   `json:"input_type,omitempty"`
		EventStateMask []string `json:"event_state_mask,omitempty"`
	} `json:"binding"`
}

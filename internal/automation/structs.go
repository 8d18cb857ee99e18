package automation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NodeType tags the role a node plays in a flow graph
type NodeType string

const (
	NodeStart         NodeType = "start"
	NodeTextMessage   NodeType = "textMessage"
	NodeOptionMessage NodeType = "optionMessage"
	NodeButtonMessage NodeType = "buttonMessage"
	NodeButtonChild   NodeType = "buttonChild"
	NodeOptionChild   NodeType = "optionChild"
	NodeAgentHandoff  NodeType = "agentHandoff"
	NodeUploadMessage NodeType = "uploadMessage"
)

// StartNodeID is the id every flow graph begins at.
const StartNodeID = "start"

func (t NodeType) valid() bool {
	switch t {
	case NodeStart, NodeTextMessage, NodeOptionMessage, NodeButtonMessage,
		NodeButtonChild, NodeOptionChild, NodeAgentHandoff, NodeUploadMessage:
		return true
	}
	return false
}

// Structural nodes shape the graph but never produce an outbound message.
func (t NodeType) Structural() bool {
	return t == NodeStart || t == NodeButtonChild || t == NodeOptionChild
}

// Node is one step of a flow graph.
type Node struct {
	ID           string
	Type         NodeType
	Message      string
	Children     []string
	Next         string
	NeedResponse bool
	Payload      Payload // nil for plain text nodes
}

// Payload is the optional rich content of a node. Exactly one variant is set per node.
type Payload interface {
	payloadKind() string
}

type FileKind string

const (
	FileImage FileKind = "image"
	FileVideo FileKind = "video"
	FileAudio FileKind = "audio"
)

type FilePayload struct {
	Kind FileKind `json:"kind"`
	URL  string   `json:"url"`
}

type LocationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

type CTAButtonPayload struct {
	DisplayText string `json:"displayText"`
	URL         string `json:"url"`
	Header      string `json:"header,omitempty"`
	Footer      string `json:"footer,omitempty"`
}

type HTTPCallPayload struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

func (*FilePayload) payloadKind() string { return "file" }
func (*LocationPayload) payloadKind() string { return "location" }
func (*CTAButtonPayload) payloadKind() string { return "cta_button" }
func (*HTTPCallPayload) payloadKind() string { return "http_call" }

// nodeJSON is the builder's wire shape. It may carry several payload fields at once.
type nodeJSON struct {
	ID           string            `json:"id"`
	Type         NodeType          `json:"type"`
	Message      string            `json:"message"`
	Children     []string          `json:"children,omitempty"`
	Next         string            `json:"next,omitempty"`
	NeedResponse bool              `json:"needResponse"`
	File         *FilePayload      `json:"file,omitempty"`
	Location     *LocationPayload  `json:"location,omitempty"`
	CTAButton    *CTAButtonPayload `json:"ctaButton,omitempty"`
	HTTPAPICall  *HTTPCallPayload  `json:"httpApiCall,omitempty"`
}

// UnmarshalJSON keeps a single payload, preferring location, then CTA button,
// then HTTP API call, then file.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*n = Node{
		ID:           raw.ID,
		Type:         raw.Type,
		Message:      raw.Message,
		Children:     raw.Children,
		Next:         raw.Next,
		NeedResponse: raw.NeedResponse,
	}
	switch {
	case raw.Location != nil:
		n.Payload = raw.Location
	case raw.CTAButton != nil:
		n.Payload = raw.CTAButton
	case raw.HTTPAPICall != nil:
		n.Payload = raw.HTTPAPICall
	case raw.File != nil:
		raw.File.Kind = FileKind(strings.ToLower(string(raw.File.Kind)))
		n.Payload = raw.File
	}
	return nil
}

func (n Node) MarshalJSON() ([]byte, error) {
	raw := nodeJSON{
		ID:           n.ID,
		Type:         n.Type,
		Message:      n.Message,
		Children:     n.Children,
		Next:         n.Next,
		NeedResponse: n.NeedResponse,
	}
	switch p := n.Payload.(type) {
	case *FilePayload:
		raw.File = p
	case *LocationPayload:
		raw.Location = p
	case *CTAButtonPayload:
		raw.CTAButton = p
	case *HTTPCallPayload:
		raw.HTTPAPICall = p
	case nil:
	default:
		return nil, fmt.Errorf("unknown payload %T", p)
	}
	return json.Marshal(raw)
}

// ButtonReply identifies the button a user tapped.
type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// InboundEvent is the engine's view of one inbound message: either text or a button tap.
type InboundEvent struct {
	Text        string
	Interactive *ButtonReply
}

func (e InboundEvent) IsInteractive() bool {
	return e.Interactive != nil
}

// Input is the text used for trigger matching: the message body or the tapped button title.
func (e InboundEvent) Input() string {
	if e.Interactive != nil {
		return e.Interactive.Title
	}
	return e.Text
}

// Outcome is the engine's verdict on an inbound event.
type Outcome int

const (
	// Unowned events go to the automation rules.
	Unowned Outcome = iota
	// Handled events were fully resolved by a flow.
	Handled
	// Rejected events were invalid input to an active flow; nothing is sent and
	// no fallback runs.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Handled:
		return "handled"
	case Rejected:
		return "rejected"
	default:
		return "unowned"
	}
}

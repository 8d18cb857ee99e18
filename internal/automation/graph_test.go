package automation

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodeIDs(nodes []Node) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestParseGraph(t *testing.T) {
	graph, err := ParseGraph(`{
		"start": {"type": "start", "next": "a"},
		"a": {"type": "textMessage", "message": "hi"}
	}`)
	require.NoError(t, err)
	require.Len(t, graph, 2)
	assert.Equal(t, "a", graph["a"].ID)
	assert.Equal(t, NodeTextMessage, graph["a"].Type)
}

func TestParseGraphRejectsBadInput(t *testing.T) {
	for name, data := range map[string]string{
		"empty":        "",
		"not json":     "{",
		"no nodes":     "{}",
		"unknown type": `{"start": {"type": "carousel"}}`,
		"array":        `[]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseGraph(data)
			assert.True(t, errors.Is(err, ErrInvalidGraph), "got %v", err)
		})
	}
}

func TestNodePayloadPrecedence(t *testing.T) {
	var n Node
	err := json.Unmarshal([]byte(`{
		"id": "x", "type": "uploadMessage",
		"file": {"kind": "IMAGE", "url": "http://img"},
		"httpApiCall": {"method": "GET", "url": "http://api"},
		"ctaButton": {"displayText": "Open", "url": "http://cta"},
		"location": {"latitude": 1.5, "longitude": 2.5}
	}`), &n)
	require.NoError(t, err)
	loc, ok := n.Payload.(*LocationPayload)
	require.True(t, ok, "got %T", n.Payload)
	assert.Equal(t, 1.5, loc.Latitude)

	require.NoError(t, json.Unmarshal([]byte(`{"type": "uploadMessage",
		"file": {"kind": "image", "url": "u"}, "httpApiCall": {"url": "http://api"}}`), &n))
	assert.IsType(t, &HTTPCallPayload{}, n.Payload)

	require.NoError(t, json.Unmarshal([]byte(`{"type": "uploadMessage", "file": {"kind": "VIDEO", "url": "u"}}`), &n))
	file, ok := n.Payload.(*FilePayload)
	require.True(t, ok)
	assert.Equal(t, FileVideo, file.Kind)

	require.NoError(t, json.Unmarshal([]byte(`{"type": "textMessage", "message": "plain"}`), &n))
	assert.Nil(t, n.Payload)
}

func TestNodeMarshalKeepsPayload(t *testing.T) {
	n := Node{ID: "x", Type: NodeUploadMessage, Payload: &CTAButtonPayload{DisplayText: "Go", URL: "http://x"}}
	data, err := json.Marshal(n)
	require.NoError(t, err)

	var back Node
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, n, back)
}

func TestWalkStopsAtNeedResponse(t *testing.T) {
	graph := FlowGraph{
		"start": {ID: "start", Type: NodeStart, Next: "a"},
		"a":     {ID: "a", Type: NodeTextMessage, Next: "b"},
		"b":     {ID: "b", Type: NodeButtonMessage, NeedResponse: true, Next: "c"},
		"c":     {ID: "c", Type: NodeTextMessage},
	}
	nodes, err := graph.Walk("start")
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "a", "b"}, nodeIDs(nodes))
	assert.Equal(t, []string{"a", "b"}, nodeIDs(ContentNodes(nodes)))
}

func TestWalkDanglingNextEnds(t *testing.T) {
	graph := FlowGraph{"a": {ID: "a", Type: NodeTextMessage, Next: "gone"}}
	nodes, err := graph.Walk("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, nodeIDs(nodes))
}

func TestWalkMissingStart(t *testing.T) {
	_, err := FlowGraph{"a": {ID: "a"}}.Walk("start")
	assert.True(t, errors.Is(err, ErrNodeNotFound))
}

func TestWalkTerminatesOnCycle(t *testing.T) {
	graph := FlowGraph{
		"a": {ID: "a", Type: NodeTextMessage, Next: "b"},
		"b": {ID: "b", Type: NodeTextMessage, Next: "c"},
		"c": {ID: "c", Type: NodeTextMessage, Next: "a"},
	}
	for _, from := range []string{"a", "b", "c"} {
		nodes, err := graph.Walk(from)
		require.True(t, errors.Is(err, ErrFlowCycle))
		assert.Len(t, nodes, 3)

		seen := map[string]bool{}
		for _, n := range nodes {
			assert.False(t, seen[n.ID], "node %s walked twice", n.ID)
			seen[n.ID] = true
		}
	}
}

func TestWalkSelfLoop(t *testing.T) {
	graph := FlowGraph{"a": {ID: "a", Type: NodeTextMessage, Next: "a"}}
	nodes, err := graph.Walk("a")
	assert.True(t, errors.Is(err, ErrFlowCycle))
	assert.Equal(t, []string{"a"}, nodeIDs(nodes))
}

func TestValidate(t *testing.T) {
	graph := FlowGraph{
		"a": {ID: "a", Type: NodeTextMessage, Next: "b", Children: []string{"ghost"}},
		"b": {ID: "b", Type: NodeTextMessage, Next: "a"},
		"c": {ID: "c", Type: NodeTextMessage, Next: "nowhere"},
	}
	problems := graph.Validate()

	var missing, cycles int
	for _, p := range problems {
		switch {
		case errors.Is(p, ErrNodeNotFound):
			missing++
		case errors.Is(p, ErrFlowCycle):
			cycles++
		}
	}
	assert.Equal(t, 3, missing) // start, ghost child, dangling next
	assert.GreaterOrEqual(t, cycles, 1)

	ok := FlowGraph{
		"start": {ID: "start", Type: NodeStart, Next: "a"},
		"a":     {ID: "a", Type: NodeOptionMessage, Children: []string{"o1"}},
		"o1":    {ID: "o1", Type: NodeOptionChild},
	}
	assert.Empty(t, ok.Validate())
}

func TestValidateAllowsLoopThroughPrompt(t *testing.T) {
	graph := FlowGraph{
		"start": {ID: "start", Type: NodeStart, Next: "ask"},
		"ask":   {ID: "ask", Type: NodeButtonMessage, Message: "Again?", NeedResponse: true, Children: []string{"yes"}},
		"yes":   {ID: "yes", Type: NodeButtonChild, Message: "Yes", Next: "again"},
		"again": {ID: "again", Type: NodeTextMessage, Message: "Here we go", Next: "ask"},
	}
	assert.Empty(t, graph.Validate())

	nodes, err := graph.Walk("yes")
	require.NoError(t, err)
	assert.Equal(t, []string{"yes", "again", "ask"}, nodeIDs(nodes))

	// The same loop without the prompt never stops.
	ask := graph["ask"]
	ask.NeedResponse = false
	ask.Next = "again"
	graph["ask"] = ask
	var cycles int
	for _, p := range graph.Validate() {
		if errors.Is(p, ErrFlowCycle) {
			cycles++
		}
	}
	assert.NotZero(t, cycles)
}

func TestStepsResolveChildLabels(t *testing.T) {
	graph := FlowGraph{
		"menu": {ID: "menu", Type: NodeOptionMessage, Children: []string{"o1", "o2", "missing"}},
		"o1":   {ID: "o1", Type: NodeOptionChild, Message: "Sales"},
		"o2":   {ID: "o2", Type: NodeOptionChild, Message: "Support"},
	}
	steps := graph.Steps([]Node{graph["menu"]})
	require.Len(t, steps, 1)
	assert.Equal(t, []Option{
		{ID: "o1", Label: "Sales"},
		{ID: "o2", Label: "Support"},
		{ID: "missing", Label: "missing"},
	}, steps[0].Options)
}

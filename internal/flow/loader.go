package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/flowmesh/flowmesh/internal/action"
	"github.com/flowmesh/flowmesh/internal/domain/value"
	"github.com/flowmesh/flowmesh/internal/expr"
	"github.com/flowmesh/flowmesh/internal/telemetry/logging"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// cronParser validates cron expressions at load time; schedules are
// re-parsed by the scheduler package when they run.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ErrMissingStartNode, ErrMissingEndNode are the two structural checks that
// carry no per-instance detail.
var (
	ErrMissingStartNode = errors.New("missing start node")
	ErrMissingEndNode   = errors.New("missing end node")
)

// TooManyStartNodesError reports more than one start node in a flow file.
type TooManyStartNodesError struct{ Count int }

func (e *TooManyStartNodesError) Error() string {
	return fmt.Sprintf("only one start node is allowed, found %d", e.Count)
}

// NoConnectingNodeError reports a node with no link pointing to it.
type NoConnectingNodeError struct{ Node, Flow string }

func (e *NoConnectingNodeError) Error() string {
	return fmt.Sprintf("no links found to node '%s' in flow '%s'", e.Node, e.Flow)
}

// MissingNodeError reports a link whose target id is not declared.
type MissingNodeError struct{ NodeID, OutgoingNodeID string }

func (e *MissingNodeError) Error() string {
	return fmt.Sprintf("node '%s' has a missing outgoing node to '%s'", e.NodeID, e.OutgoingNodeID)
}

// TooManyParentNodesError reports a non-start node reachable from more than
// one outgoing link.
type TooManyParentNodesError struct {
	Node    string
	Parents []string
}

func (e *TooManyParentNodesError) Error() string {
	return fmt.Sprintf("node '%s' has more than one parent: %s", e.Node, strings.Join(e.Parents, ", "))
}

// UnusedNodesError reports nodes that the reverse walk from the end nodes
// never reached.
type UnusedNodesError struct{ Nodes []string }

func (e *UnusedNodesError) Error() string {
	return fmt.Sprintf("unused nodes: %s", strings.Join(e.Nodes, ", "))
}

// DuplicateLinkValueError reports two outgoing links of the same
// conditional node sharing a selector value.
type DuplicateLinkValueError struct {
	Node  string
	Value string
}

func (e *DuplicateLinkValueError) Error() string {
	return fmt.Sprintf("conditional node '%s' has more than one outgoing link for value %s", e.Node, e.Value)
}

// parsedNode is a node still carrying its raw outgoing target ids, before
// the graph has been linked up.
type parsedNode struct {
	id       string
	kind     NodeKind
	outgoing []wireLink // raw; resolved into Link once targets are built

	expr     expr.Expression
	action   action.Action
	sleepFor time.Duration
}

// FromJSON parses and validates a single flow file's contents (spec.md
// §4.3/§6), using registry to decode action nodes.
func FromJSON(data []byte, registry *action.Registry) (*Flow, error) {
	var wf wireFlow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("flow: %w", err)
	}

	parsed := make(map[string]*parsedNode, len(wf.Nodes))
	var startNodes, endNodes []*parsedNode
	order := make([]string, 0, len(wf.Nodes))

	for _, raw := range wf.Nodes {
		node, err := parseNode(raw, registry)
		if err != nil {
			return nil, err
		}
		parsed[node.id] = node
		order = append(order, node.id)
		switch node.kind {
		case Start:
			startNodes = append(startNodes, node)
		case End:
			endNodes = append(endNodes, node)
		}
	}

	if len(startNodes) == 0 {
		return nil, ErrMissingStartNode
	}
	if len(startNodes) > 1 {
		return nil, &TooManyStartNodesError{Count: len(startNodes)}
	}
	if len(endNodes) == 0 {
		return nil, ErrMissingEndNode
	}

	remaining := make(map[string]*parsedNode, len(parsed))
	for id, n := range parsed {
		remaining[id] = n
	}

	queue := make([]*parsedNode, len(endNodes))
	copy(queue, endNodes)
	for _, n := range endNodes {
		delete(remaining, n.id)
	}

	built := make(map[string]*Node, len(parsed))
	var startNode *Node

	for len(queue) > 0 {
		current := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		var incoming []*parsedNode
		for _, id := range order {
			candidate, stillRemaining := remaining[id]
			if !stillRemaining {
				continue
			}
			if nodePointsTo(candidate, current.id) {
				incoming = append(incoming, candidate)
			}
		}

		if current.kind != Start && len(incoming) == 0 {
			return nil, &NoConnectingNodeError{Node: current.id, Flow: wf.Name}
		}
		if current.kind != Start && len(incoming) > 1 {
			parents := make([]string, 0, len(incoming))
			for _, n := range incoming {
				parents = append(parents, n.id)
			}
			sort.Strings(parents)
			return nil, &TooManyParentNodesError{Node: current.id, Parents: parents}
		}

		for _, n := range incoming {
			delete(remaining, n.id)
		}
		queue = append(queue, incoming...)

		links, err := resolveLinks(current, built)
		if err != nil {
			return nil, err
		}

		node := &Node{
			ID:       current.id,
			Kind:     current.kind,
			Outgoing: links,
			Expr:     current.expr,
			Action:   current.action,
			SleepFor: current.sleepFor,
		}

		if current.kind == Start {
			startNode = node
		} else {
			built[current.id] = node
		}
	}

	if len(remaining) > 0 {
		unused := make([]string, 0, len(remaining))
		for id := range remaining {
			unused = append(unused, id)
		}
		sort.Strings(unused)
		return nil, &UnusedNodesError{Nodes: unused}
	}

	if startNode == nil {
		return nil, ErrMissingStartNode
	}

	schedule, err := decodeSchedule(wf.Schedule)
	if err != nil {
		return nil, err
	}
	trigger, err := decodeExpression(wf.Trigger)
	if err != nil {
		return nil, fmt.Errorf("trigger: %w", err)
	}

	byID := make(map[string]*Node, len(built)+1)
	for id, n := range built {
		byID[id] = n
	}
	byID[startNode.ID] = startNode

	flowID := wf.ID
	if strings.TrimSpace(flowID) == "" {
		flowID = uuid.NewString()
	}

	return &Flow{
		ID:        flowID,
		Name:      wf.Name,
		Schedule:  schedule,
		Trigger:   trigger,
		StartNode: startNode,
		NodeByID:  byID,
	}, nil
}

func nodePointsTo(n *parsedNode, targetID string) bool {
	for _, link := range n.outgoing {
		if link.Node == targetID {
			return true
		}
	}
	return false
}

func resolveLinks(n *parsedNode, built map[string]*Node) ([]Link, error) {
	if len(n.outgoing) == 0 {
		return nil, nil
	}
	links := make([]Link, 0, len(n.outgoing))
	seenValues := make([]value.Value, 0, len(n.outgoing))
	for _, wl := range n.outgoing {
		target, ok := built[wl.Node]
		if !ok {
			return nil, &MissingNodeError{NodeID: n.id, OutgoingNodeID: wl.Node}
		}
		v, err := decodeLinkValue(wl.Value)
		if err != nil {
			return nil, fmt.Errorf("node '%s': %w", n.id, err)
		}
		if n.kind == Conditional {
			for _, seen := range seenValues {
				if seen.Equal(v) {
					return nil, &DuplicateLinkValueError{Node: n.id, Value: v.String()}
				}
			}
			seenValues = append(seenValues, v)
		}
		links = append(links, Link{Target: target, Value: v})
	}
	return links, nil
}

// parseNode decodes a single node's wire shape based on its "type"
// discriminator (spec.md §6).
func parseNode(raw json.RawMessage, registry *action.Registry) (*parsedNode, error) {
	var header wireNodeHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("node: %w", err)
	}

	switch header.Type {
	case "startNode":
		var wire struct {
			OutgoingNode json.RawMessage `json:"outgoingNode"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
		link, err := decodeLink(wire.OutgoingNode)
		if err != nil {
			return nil, fmt.Errorf("node '%s': %w", header.ID, err)
		}
		return &parsedNode{id: header.ID, kind: Start, outgoing: []wireLink{link}}, nil
	case "endNode":
		return &parsedNode{id: header.ID, kind: End}, nil
	case "conditionalNode":
		var wire struct {
			OutgoingNodes []json.RawMessage `json:"outgoingNodes"`
			Expression    json.RawMessage   `json:"expression"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
		links := make([]wireLink, 0, len(wire.OutgoingNodes))
		for _, rawLink := range wire.OutgoingNodes {
			link, err := decodeLink(rawLink)
			if err != nil {
				return nil, fmt.Errorf("node '%s': %w", header.ID, err)
			}
			links = append(links, link)
		}
		condition, err := decodeExpression(wire.Expression)
		if err != nil {
			return nil, fmt.Errorf("node '%s': %w", header.ID, err)
		}
		return &parsedNode{id: header.ID, kind: Conditional, outgoing: links, expr: condition}, nil
	case "actionNode":
		var wire struct {
			OutgoingNode json.RawMessage `json:"outgoingNode"`
			Action       json.RawMessage `json:"action"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
		link, err := decodeLink(wire.OutgoingNode)
		if err != nil {
			return nil, fmt.Errorf("node '%s': %w", header.ID, err)
		}
		a, err := decodeAction(wire.Action, registry)
		if err != nil {
			return nil, fmt.Errorf("node '%s': %w", header.ID, err)
		}
		return &parsedNode{id: header.ID, kind: ActionNode, outgoing: []wireLink{link}, action: a}, nil
	case "sleepNode":
		var wire struct {
			OutgoingNode json.RawMessage `json:"outgoingNode"`
			Duration     string          `json:"duration"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
		link, err := decodeLink(wire.OutgoingNode)
		if err != nil {
			return nil, fmt.Errorf("node '%s': %w", header.ID, err)
		}
		d, err := time.ParseDuration(wire.Duration)
		if err != nil {
			return nil, fmt.Errorf("node '%s': invalid duration '%s': %w", header.ID, wire.Duration, err)
		}
		return &parsedNode{id: header.ID, kind: Sleep, outgoing: []wireLink{link}, sleepFor: d}, nil
	default:
		return nil, fmt.Errorf("node '%s': unknown type '%s'", header.ID, header.Type)
	}
}

// LoadDir loads every *.ext flow file from directory, logging and skipping
// files that fail to parse or validate rather than aborting the whole
// load (spec.md §6: "each failing independently with a logged warning").
func LoadDir(directory, extension string, registry *action.Registry, logger logging.Logger) ([]*Flow, error) {
	ctx := context.Background()
	root := os.DirFS(directory)
	entries, err := fs.ReadDir(root, ".")
	if err != nil {
		return nil, fmt.Errorf("flow: reading directory '%s': %w", directory, err)
	}

	var flows []*Flow
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != "."+extension {
			continue
		}
		path := filepath.Join(directory, entry.Name())
		data, err := fs.ReadFile(root, entry.Name())
		if err != nil {
			logger.WarnCtx(ctx, "failed to read flow file", "path", path, "error", err)
			continue
		}
		flow, err := FromJSON(data, registry)
		if err != nil {
			logger.WarnCtx(ctx, "failed to load flow file", "path", path, "error", err)
			continue
		}
		flows = append(flows, flow)
	}
	return flows, nil
}

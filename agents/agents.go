// Package agents wires the five concrete managers named in
// original_source/agents/manager_{i,m,s,t,d}.py — IoT control, memory,
// search, calendar, and multi-step delegation — into agentnode.Node values
// and registers their tools into a shared tools.Registry (spec.md §5). The
// orchestration core (executor, router, agentnode) never imports this
// package's collaborator clients directly; it only ever sees llm.Provider,
// tools.Registry, and agentnode.Node.
package agents

import (
	"github.com/hhyun1051/teamh-orchestrator/agentnode"
	"github.com/hhyun1051/teamh-orchestrator/approval"
	"github.com/hhyun1051/teamh-orchestrator/integrations/calendar"
	"github.com/hhyun1051/teamh-orchestrator/integrations/homeassistant"
	"github.com/hhyun1051/teamh-orchestrator/integrations/websearch"
	"github.com/hhyun1051/teamh-orchestrator/llm"
	"github.com/hhyun1051/teamh-orchestrator/telemetry"
	"github.com/hhyun1051/teamh-orchestrator/tools"
	"github.com/hhyun1051/teamh-orchestrator/vectorstore"
)

// AgentID enumerates the five routing targets spec.md §5 names.
const (
	IoT       = "i"
	Memory    = "m"
	Search    = "s"
	Calendar  = "t"
	Delegator = "d"
)

// All lists every agent identifier. registerHandoffTools does not follow this
// order: it registers handoff tools by ranging over the node map.
var All = []string{IoT, Memory, Search, Calendar, Delegator}

// Collaborators bundles the external-system clients each manager talks to.
// A nil client disables the manager that depends on it (Build skips
// registering that manager's node), matching config's per-agent enable
// flags (spec.md §6.5).
type Collaborators struct {
	HomeAssistant *homeassistant.Client
	Vectorstore   vectorstore.Store
	WebSearch     *websearch.Client
	Calendar      *calendar.Client
}

// BuildParams carries everything Build needs to construct the team.
type BuildParams struct {
	Registry      *tools.Registry
	Provider      llm.Provider
	Approval      *approval.Middleware
	Telemetry     telemetry.Bundle
	Collaborators Collaborators
	// SummarizeAfterTokens configures manager_d's history-summarization
	// threshold (spec.md §5); 0 disables summarization.
	SummarizeAfterTokens int
}

// Build registers every enabled manager's tools into p.Registry and returns
// the resulting agentnode.Node values keyed by AgentID. Handoff tools are
// registered for every pair of enabled agents so any manager can transfer
// control to any other (manager_d is the natural hub, but the spec does not
// restrict handoffs to originate there).
func Build(p BuildParams) (map[string]*agentnode.Node, error) {
	nodes := make(map[string]*agentnode.Node)

	if p.Collaborators.HomeAssistant != nil {
		node, err := buildManagerI(p)
		if err != nil {
			return nil, err
		}
		nodes[IoT] = node
	}
	if p.Collaborators.Vectorstore != nil {
		node, err := buildManagerM(p)
		if err != nil {
			return nil, err
		}
		nodes[Memory] = node
	}
	if p.Collaborators.WebSearch != nil {
		node, err := buildManagerS(p)
		if err != nil {
			return nil, err
		}
		nodes[Search] = node
	}
	if p.Collaborators.Calendar != nil {
		node, err := buildManagerT(p)
		if err != nil {
			return nil, err
		}
		nodes[Calendar] = node
	}

	// manager_d is always available: it coordinates the others and degrades
	// gracefully (its handoff toolset simply shrinks) when fewer are enabled.
	delegatorNode, err := buildManagerD(p, nodes)
	if err != nil {
		return nil, err
	}
	nodes[Delegator] = delegatorNode

	if err := registerHandoffTools(p.Registry, nodes); err != nil {
		return nil, err
	}
	for _, node := range nodes {
		node.Toolset = append(node.Toolset, handoffToolNames(node.Name, nodes)...)
	}
	return nodes, nil
}

// registerHandoffTools registers one handoff_to_<id> tool per enabled agent
// (spec.md §4.3 HandoffPrefix convention); the Handoff Detector reacts to the
// sentinel in the Tool message content, which RegisterHandoff's own Handler
// produces when the tool is actually invoked.
func registerHandoffTools(reg *tools.Registry, nodes map[string]*agentnode.Node) error {
	for id := range nodes {
		if err := reg.RegisterHandoff(id, handoffDescription(id)); err != nil {
			return err
		}
	}
	return nil
}

func handoffDescription(id string) string {
	switch id {
	case IoT:
		return "Transfer to the IoT control manager for smart-home device actions."
	case Memory:
		return "Transfer to the memory manager to recall or store long-term user facts."
	case Search:
		return "Transfer to the search manager for web search or news lookups."
	case Calendar:
		return "Transfer to the calendar manager to create, update, or look up events."
	case Delegator:
		return "Transfer to the delegator manager for multi-step requests spanning several domains."
	default:
		return "Transfer to agent " + id + "."
	}
}

// handoffToolNames returns every handoff tool name except the one naming the
// agent itself (an agent never hands off to itself).
func handoffToolNames(self string, nodes map[string]*agentnode.Node) []string {
	names := make([]string, 0, len(nodes))
	for id := range nodes {
		if id == self {
			continue
		}
		names = append(names, tools.HandoffPrefix+id)
	}
	return names
}

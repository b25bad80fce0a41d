package blockflow

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Options are used to configure a workflow.
type Options struct {
	Name        string               `json:"name" yaml:"name"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Blocks      []*Block             `json:"blocks" yaml:"blocks"`
	Edges       []*Edge              `json:"edges,omitempty" yaml:"edges,omitempty"`
	Loops       map[string]*Loop     `json:"loops,omitempty" yaml:"loops,omitempty"`
	Parallels   map[string]*Parallel `json:"parallels,omitempty" yaml:"parallels,omitempty"`
	Variables   map[string]any       `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// Workflow is an immutable serialized graph of blocks and edges, with loop and
// parallel groupings marking sub-graphs for repeated or fanned-out execution.
type Workflow struct {
	name        string
	description string
	blocks      []*Block
	edges       []*Edge
	loops       map[string]*Loop
	parallels   map[string]*Parallel
	variables   map[string]any

	blocksByID map[string]*Block
	idsByName  map[string][]string
	inbound    map[string][]*Edge
	outbound   map[string][]*Edge
	memberOf   map[string]string
}

// New returns a new Workflow configured with the given options. The graph is
// validated eagerly; a malformed graph returns an ErrorTypeGraph error and the
// workflow is never run.
func New(opts Options) (*Workflow, error) {
	if opts.Name == "" {
		return nil, NewGraphError("workflow name required")
	}
	if len(opts.Blocks) == 0 {
		return nil, NewGraphError("workflow must have at least one block")
	}

	w := &Workflow{
		name:        opts.Name,
		description: opts.Description,
		blocks:      opts.Blocks,
		edges:       opts.Edges,
		loops:       opts.Loops,
		parallels:   opts.Parallels,
		variables:   opts.Variables,
		blocksByID:  make(map[string]*Block, len(opts.Blocks)),
		idsByName:   make(map[string][]string),
		inbound:     make(map[string][]*Edge),
		outbound:    make(map[string][]*Edge),
		memberOf:    make(map[string]string),
	}
	if w.loops == nil {
		w.loops = map[string]*Loop{}
	}
	if w.parallels == nil {
		w.parallels = map[string]*Parallel{}
	}

	for _, block := range opts.Blocks {
		if _, exists := w.blocksByID[block.ID]; exists {
			return nil, NewGraphError(fmt.Sprintf("duplicate block id %q", block.ID))
		}
		w.blocksByID[block.ID] = block
		if block.Name != "" {
			key := NormalizeBlockName(block.Name)
			w.idsByName[key] = append(w.idsByName[key], block.ID)
		}
	}
	for _, edge := range opts.Edges {
		w.outbound[edge.From] = append(w.outbound[edge.From], edge)
		w.inbound[edge.To] = append(w.inbound[edge.To], edge)
	}
	for groupID, loop := range w.loops {
		for _, member := range loop.Nodes {
			w.memberOf[member] = groupID
		}
	}
	for groupID, parallel := range w.parallels {
		for _, member := range parallel.Nodes {
			w.memberOf[member] = groupID
		}
	}

	if err := w.validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Name returns the workflow name.
func (w *Workflow) Name() string {
	return w.name
}

// Description returns the workflow description.
func (w *Workflow) Description() string {
	return w.description
}

// Blocks returns the workflow blocks in serialized order.
func (w *Workflow) Blocks() []*Block {
	return w.blocks
}

// Edges returns the workflow edges.
func (w *Workflow) Edges() []*Edge {
	return w.edges
}

// Variables returns a copy of the workflow-level variables.
func (w *Workflow) Variables() map[string]any {
	variables := make(map[string]any, len(w.variables))
	for name, value := range w.variables {
		variables[name] = value
	}
	return variables
}

// GetBlock returns a block by id.
func (w *Workflow) GetBlock(id string) (*Block, bool) {
	block, ok := w.blocksByID[id]
	return block, ok
}

// BlockIDsByName returns the ids of all blocks whose normalized display name
// matches the given name. More than one id means the reference is ambiguous.
func (w *Workflow) BlockIDsByName(name string) []string {
	return w.idsByName[NormalizeBlockName(name)]
}

// BlockIDs returns the ids of all blocks, sorted.
func (w *Workflow) BlockIDs() []string {
	ids := make([]string, 0, len(w.blocksByID))
	for id := range w.blocksByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Inbound returns the edges targeting the given block.
func (w *Workflow) Inbound(id string) []*Edge {
	return w.inbound[id]
}

// Outbound returns the edges originating at the given block.
func (w *Workflow) Outbound(id string) []*Edge {
	return w.outbound[id]
}

// GroupOf returns the grouping id the block is a member of, if any.
func (w *Workflow) GroupOf(id string) (string, bool) {
	groupID, ok := w.memberOf[id]
	return groupID, ok
}

// Loop returns the loop grouping with the given id.
func (w *Workflow) Loop(id string) (*Loop, bool) {
	loop, ok := w.loops[id]
	return loop, ok
}

// Parallel returns the parallel grouping with the given id.
func (w *Workflow) Parallel(id string) (*Parallel, bool) {
	parallel, ok := w.parallels[id]
	return parallel, ok
}

// GroupMembers returns the member set of a grouping.
func (w *Workflow) GroupMembers(groupID string) map[string]bool {
	members := map[string]bool{}
	if loop, ok := w.loops[groupID]; ok {
		for _, id := range loop.Nodes {
			members[id] = true
		}
	}
	if parallel, ok := w.parallels[groupID]; ok {
		for _, id := range parallel.Nodes {
			members[id] = true
		}
	}
	return members
}

// GroupEntryBlocks returns the member blocks reached from the grouping block
// through its start handle, in edge order.
func (w *Workflow) GroupEntryBlocks(groupID string) []string {
	var entries []string
	for _, edge := range w.outbound[groupID] {
		if edge.SourceHandle == SourceHandleLoopStart || edge.SourceHandle == SourceHandleParallelStart {
			entries = append(entries, edge.To)
		}
	}
	return entries
}

// EntryBlocks returns the blocks where execution begins: non-member blocks
// with no inbound edges.
func (w *Workflow) EntryBlocks() []string {
	var entries []string
	for _, block := range w.blocks {
		if _, grouped := w.memberOf[block.ID]; grouped {
			continue
		}
		if len(w.inbound[block.ID]) == 0 {
			entries = append(entries, block.ID)
		}
	}
	return entries
}

// LoadFile loads a workflow definition from a YAML or JSON file.
func LoadFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	return LoadString(string(data))
}

// LoadString loads a workflow definition from a YAML or JSON string.
func LoadString(data string) (*Workflow, error) {
	var opts Options
	if err := yaml.Unmarshal([]byte(data), &opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow definition: %w", err)
	}
	return New(opts)
}

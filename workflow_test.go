package blockflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWorkflowValidation(t *testing.T) {
	t.Run("missing name returns error", func(t *testing.T) {
		_, err := New(Options{
			Blocks: []*Block{{ID: "start", Type: BlockTypeStarter}},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "workflow name required")
	})

	t.Run("missing blocks returns error", func(t *testing.T) {
		_, err := New(Options{Name: "empty"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "at least one block")
	})

	t.Run("duplicate block id returns error", func(t *testing.T) {
		_, err := New(Options{
			Name: "dup",
			Blocks: []*Block{
				{ID: "a", Type: BlockTypeStarter},
				{ID: "a", Type: "echo"},
			},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), `duplicate block id "a"`)
	})

	t.Run("edge to unknown block returns error", func(t *testing.T) {
		_, err := New(Options{
			Name:   "dangling",
			Blocks: []*Block{{ID: "a", Type: BlockTypeStarter}},
			Edges:  []*Edge{{From: "a", To: "ghost"}},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), `unknown block "ghost"`)
	})

	t.Run("self edge returns error", func(t *testing.T) {
		_, err := New(Options{
			Name:   "self",
			Blocks: []*Block{{ID: "a", Type: BlockTypeStarter}},
			Edges:  []*Edge{{From: "a", To: "a"}},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), `self-edge on block "a"`)
	})

	t.Run("cycle returns error", func(t *testing.T) {
		_, err := New(Options{
			Name: "cyclic",
			Blocks: []*Block{
				{ID: "start", Type: BlockTypeStarter},
				{ID: "a", Type: "echo"},
				{ID: "b", Type: "echo"},
			},
			Edges: []*Edge{
				{From: "start", To: "a"},
				{From: "a", To: "b"},
				{From: "b", To: "a"},
			},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "contains a cycle")
	})

	t.Run("graph errors carry the graph type", func(t *testing.T) {
		_, err := New(Options{Name: "bad"})
		require.Error(t, err)
		require.True(t, MatchesErrorType(err, ErrorTypeGraph))
		require.False(t, MatchesErrorType(err, ErrorTypeAll))
	})
}

func TestWorkflowGroupingValidation(t *testing.T) {
	base := func() []*Block {
		return []*Block{
			{ID: "start", Type: BlockTypeStarter},
			{ID: "iterate", Type: BlockTypeLoop},
			{ID: "work", Type: "echo"},
			{ID: "done", Type: "echo"},
		}
	}
	edges := func() []*Edge {
		return []*Edge{
			{From: "start", To: "iterate"},
			{From: "iterate", To: "work", SourceHandle: SourceHandleLoopStart},
			{From: "iterate", To: "done", SourceHandle: SourceHandleLoopEnd},
		}
	}

	t.Run("valid loop grouping passes", func(t *testing.T) {
		wf, err := New(Options{
			Name:   "looped",
			Blocks: base(),
			Edges:  edges(),
			Loops:  map[string]*Loop{"iterate": {Nodes: []string{"work"}, Iterations: 2}},
		})
		require.NoError(t, err)
		require.True(t, wf.GroupMembers("iterate")["work"])
		require.Equal(t, []string{"work"}, wf.GroupEntryBlocks("iterate"))
	})

	t.Run("grouping without matching block returns error", func(t *testing.T) {
		blocks := append(base(), &Block{ID: "other", Type: "echo"})
		_, err := New(Options{
			Name:   "ghost-group",
			Blocks: blocks,
			Edges:  edges(),
			Loops: map[string]*Loop{
				"iterate": {Nodes: []string{"work"}, Iterations: 2},
				"ghost":   {Nodes: []string{"other"}, Iterations: 1},
			},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), `grouping "ghost" does not match any block`)
	})

	t.Run("grouping with unknown member returns error", func(t *testing.T) {
		_, err := New(Options{
			Name:   "unknown-member",
			Blocks: base(),
			Edges:  edges(),
			Loops:  map[string]*Loop{"iterate": {Nodes: []string{"ghost"}, Iterations: 2}},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), `references unknown block "ghost"`)
	})

	t.Run("block in two groupings returns error", func(t *testing.T) {
		blocks := append(base(), &Block{ID: "fan", Type: BlockTypeParallel})
		_, err := New(Options{
			Name:   "overlap",
			Blocks: blocks,
			Edges:  edges(),
			Loops:  map[string]*Loop{"iterate": {Nodes: []string{"work"}, Iterations: 2}},
			Parallels: map[string]*Parallel{
				"fan": {Nodes: []string{"work"}, Count: 2},
			},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "belongs to both groupings")
	})

	t.Run("loop without iterations or forEach returns error", func(t *testing.T) {
		_, err := New(Options{
			Name:   "no-plan",
			Blocks: base(),
			Edges:  edges(),
			Loops:  map[string]*Loop{"iterate": {Nodes: []string{"work"}}},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "positive iteration count or a forEach collection")
	})

	t.Run("loop grouping on non-loop block returns error", func(t *testing.T) {
		_, err := New(Options{
			Name: "wrong-type",
			Blocks: []*Block{
				{ID: "start", Type: BlockTypeStarter},
				{ID: "work", Type: "echo"},
			},
			Edges: []*Edge{{From: "start", To: "work"}},
			Loops: map[string]*Loop{"start": {Nodes: []string{"work"}, Iterations: 1}},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), `refers to a "starter" block`)
	})

	t.Run("parallel without distribution or count returns error", func(t *testing.T) {
		_, err := New(Options{
			Name: "no-fanout",
			Blocks: []*Block{
				{ID: "start", Type: BlockTypeStarter},
				{ID: "fan", Type: BlockTypeParallel},
				{ID: "work", Type: "echo"},
			},
			Edges: []*Edge{
				{From: "start", To: "fan"},
				{From: "fan", To: "work", SourceHandle: SourceHandleParallelStart},
			},
			Parallels: map[string]*Parallel{"fan": {Nodes: []string{"work"}}},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "distribution collection or a positive count")
	})
}

func TestWorkflowBoundaryValidation(t *testing.T) {
	t.Run("plain edge into a grouping returns error", func(t *testing.T) {
		_, err := New(Options{
			Name: "leaky",
			Blocks: []*Block{
				{ID: "start", Type: BlockTypeStarter},
				{ID: "iterate", Type: BlockTypeLoop},
				{ID: "work", Type: "echo"},
			},
			Edges: []*Edge{
				{From: "start", To: "iterate"},
				{From: "iterate", To: "work", SourceHandle: SourceHandleLoopStart},
				{From: "start", To: "work"},
			},
			Loops: map[string]*Loop{"iterate": {Nodes: []string{"work"}, Iterations: 1}},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "crosses a grouping boundary")
	})

	t.Run("start handle must target a member", func(t *testing.T) {
		_, err := New(Options{
			Name: "bad-start-handle",
			Blocks: []*Block{
				{ID: "start", Type: BlockTypeStarter},
				{ID: "iterate", Type: BlockTypeLoop},
				{ID: "work", Type: "echo"},
				{ID: "outside", Type: "echo"},
			},
			Edges: []*Edge{
				{From: "start", To: "iterate"},
				{From: "iterate", To: "work", SourceHandle: SourceHandleLoopStart},
				{From: "iterate", To: "outside", SourceHandle: SourceHandleLoopStart},
			},
			Loops: map[string]*Loop{"iterate": {Nodes: []string{"work"}, Iterations: 1}},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "must target a member")
	})

	t.Run("end handle must leave the grouping", func(t *testing.T) {
		_, err := New(Options{
			Name: "bad-end-handle",
			Blocks: []*Block{
				{ID: "start", Type: BlockTypeStarter},
				{ID: "iterate", Type: BlockTypeLoop},
				{ID: "work", Type: "echo"},
			},
			Edges: []*Edge{
				{From: "start", To: "iterate"},
				{From: "iterate", To: "work", SourceHandle: SourceHandleLoopStart},
				{From: "iterate", To: "work", SourceHandle: SourceHandleLoopEnd},
			},
			Loops: map[string]*Loop{"iterate": {Nodes: []string{"work"}, Iterations: 1}},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "must leave grouping")
	})
}

func TestWorkflowAccessors(t *testing.T) {
	wf, err := New(Options{
		Name:        "accessors",
		Description: "exercises the read side",
		Blocks: []*Block{
			{ID: "start", Type: BlockTypeStarter},
			{ID: "fetch", Type: "http", Name: "Fetch Data"},
			{ID: "fetch2", Type: "http", Name: "fetch  DATA"},
		},
		Edges: []*Edge{
			{From: "start", To: "fetch"},
			{From: "start", To: "fetch2"},
		},
		Variables: map[string]any{"region": "us-east-1"},
	})
	require.NoError(t, err)

	t.Run("name and description", func(t *testing.T) {
		require.Equal(t, "accessors", wf.Name())
		require.Equal(t, "exercises the read side", wf.Description())
	})

	t.Run("block lookup by id", func(t *testing.T) {
		block, ok := wf.GetBlock("fetch")
		require.True(t, ok)
		require.Equal(t, "Fetch Data", block.Name)
		_, ok = wf.GetBlock("ghost")
		require.False(t, ok)
	})

	t.Run("block ids are sorted", func(t *testing.T) {
		require.Equal(t, []string{"fetch", "fetch2", "start"}, wf.BlockIDs())
	})

	t.Run("name lookup is normalized and reports duplicates", func(t *testing.T) {
		ids := wf.BlockIDsByName("fetch data")
		require.Len(t, ids, 2)
		require.Contains(t, ids, "fetch")
		require.Contains(t, ids, "fetch2")
	})

	t.Run("edges index both directions", func(t *testing.T) {
		require.Len(t, wf.Outbound("start"), 2)
		require.Len(t, wf.Inbound("fetch"), 1)
		require.Empty(t, wf.Inbound("start"))
	})

	t.Run("entry blocks ignore grouping members", func(t *testing.T) {
		require.Equal(t, []string{"start"}, wf.EntryBlocks())
	})

	t.Run("variables are copied", func(t *testing.T) {
		vars := wf.Variables()
		vars["region"] = "mutated"
		require.Equal(t, "us-east-1", wf.Variables()["region"])
	})
}

func TestNormalizeBlockName(t *testing.T) {
	require.Equal(t, "fetchdata", NormalizeBlockName("Fetch Data"))
	require.Equal(t, "fetchdata", NormalizeBlockName("  fetch\tDATA "))
	require.Equal(t, "", NormalizeBlockName(""))
}

func TestBlockHelpers(t *testing.T) {
	t.Run("enabled defaults to true", func(t *testing.T) {
		block := &Block{ID: "a", Type: "echo"}
		require.True(t, block.IsEnabled())
		disabled := false
		block.Enabled = &disabled
		require.False(t, block.IsEnabled())
	})

	t.Run("display name falls back to id", func(t *testing.T) {
		require.Equal(t, "a", (&Block{ID: "a"}).DisplayName())
		require.Equal(t, "My Block", (&Block{ID: "a", Name: "My Block"}).DisplayName())
	})

	t.Run("condition handle parsing", func(t *testing.T) {
		id, ok := (&Edge{SourceHandle: "condition-yes"}).IsConditionHandle()
		require.True(t, ok)
		require.Equal(t, "yes", id)
		_, ok = (&Edge{SourceHandle: "error"}).IsConditionHandle()
		require.False(t, ok)
	})
}

func TestLoadString(t *testing.T) {
	t.Run("yaml definition", func(t *testing.T) {
		wf, err := LoadString(`
name: greeter
description: greets the caller
variables:
  greeting: hello
blocks:
  - id: start
    type: starter
  - id: respond
    type: echo
    config:
      params:
        message: "<start.input.name>"
edges:
  - from: start
    to: respond
`)
		require.NoError(t, err)
		require.Equal(t, "greeter", wf.Name())
		require.Equal(t, "hello", wf.Variables()["greeting"])
		block, ok := wf.GetBlock("respond")
		require.True(t, ok)
		require.Equal(t, "<start.input.name>", block.Config.Params["message"])
	})

	t.Run("json definition", func(t *testing.T) {
		wf, err := LoadString(`{"name": "j", "blocks": [{"id": "start", "type": "starter"}]}`)
		require.NoError(t, err)
		require.Equal(t, "j", wf.Name())
	})

	t.Run("invalid yaml returns error", func(t *testing.T) {
		_, err := LoadString("name: [unclosed")
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to unmarshal workflow definition")
	})

	t.Run("timeout and grouping fields round-trip", func(t *testing.T) {
		wf, err := LoadString(`
name: grouped
blocks:
  - id: start
    type: starter
  - id: iterate
    type: loop
  - id: work
    type: echo
    timeout_seconds: 5
edges:
  - from: start
    to: iterate
  - from: iterate
    to: work
    sourceHandle: loop-start-source
loops:
  iterate:
    nodes: [work]
    forEach: [1, 2, 3]
`)
		require.NoError(t, err)
		block, ok := wf.GetBlock("work")
		require.True(t, ok)
		require.Equal(t, 5, block.TimeoutSeconds)
		loop, ok := wf.Loop("iterate")
		require.True(t, ok)
		require.NotNil(t, loop.ForEach)
	})
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: from-disk
blocks:
  - id: start
    type: starter
`), 0644))

	wf, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "from-disk", wf.Name())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read workflow file")
}

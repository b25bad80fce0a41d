package blockflow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Jeffail/gabs/v2"
	"github.com/blockflow-ai/blockflow/script"
)

// Reference grammar inside block inputs:
//
//	<blockNameOrID.path.to.field>   output of another block
//	<variable.name>                 workflow variable
//	<loop.index|currentItem|items>  enclosing loop scope
//	<parallel.index|currentItem>    enclosing parallel scope
//	{{ENV_VAR}}                     environment variable
//
// Block names are normalized (whitespace stripped, case folded) so references
// tolerate display-name drift. A reference that resolves to nothing yields nil
// rather than an error; a name shared by several blocks fails loudly.
var (
	refPattern    = regexp.MustCompile(`<([A-Za-z_][A-Za-z0-9_ \t-]*\.[^<>]+)>`)
	envRefPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)
)

// codeInputs lists the raw inputs per block type that hold source code or
// expressions. These are resolved in code mode by their handler, not value
// mode, so that injected values stay syntactically valid.
var codeInputs = map[string]map[string]bool{
	BlockTypeFunction:  {"code": true},
	BlockTypeCondition: {"conditions": true},
	BlockTypeRouter:    {"expression": true},
}

// Resolver turns templated block inputs into concrete values against the
// current execution context. Resolution is purely functional: it never writes
// to the context.
type Resolver struct {
	workflow *Workflow
	ectx     *ExecutionContext
}

// NewResolver returns a resolver for one run of the given workflow.
func NewResolver(workflow *Workflow, ectx *ExecutionContext) *Resolver {
	return &Resolver{workflow: workflow, ectx: ectx}
}

// ResolveInputs resolves a block's raw config params into concrete input
// values. Inputs holding code for the block's own handler are resolved in
// code mode so references become literals instead of stringified text.
func (r *Resolver) ResolveInputs(block *Block) (map[string]any, error) {
	raw := block.Config.Params
	resolved := make(map[string]any, len(raw))
	code := codeInputs[block.Type]
	for key, value := range raw {
		var out any
		var err error
		if code[key] {
			out, err = r.resolveCodeValue(value, block)
		} else {
			out, err = r.ResolveValue(value, block)
		}
		if err != nil {
			return nil, err
		}
		resolved[key] = out
	}
	return resolved, nil
}

// resolveCodeValue applies code-mode resolution to every string reachable in
// the value. Condition blocks carry lists of expressions, so code inputs are
// not always plain strings.
func (r *Resolver) resolveCodeValue(value any, block *Block) (any, error) {
	switch v := value.(type) {
	case string:
		return r.ResolveCode(v, block)
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, item := range v {
			out, err := r.resolveCodeValue(item, block)
			if err != nil {
				return nil, err
			}
			result[key] = out
		}
		return result, nil
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			out, err := r.resolveCodeValue(item, block)
			if err != nil {
				return nil, err
			}
			result[i] = out
		}
		return result, nil
	default:
		return value, nil
	}
}

// ResolveValue resolves references in a single input value. Strings are
// scanned for references, maps and slices are resolved recursively, and
// everything else passes through.
func (r *Resolver) ResolveValue(value any, block *Block) (any, error) {
	switch v := value.(type) {
	case string:
		return r.ResolveString(v, block)
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, item := range v {
			out, err := r.ResolveValue(item, block)
			if err != nil {
				return nil, err
			}
			result[key] = out
		}
		return result, nil
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			out, err := r.ResolveValue(item, block)
			if err != nil {
				return nil, err
			}
			result[i] = out
		}
		return result, nil
	default:
		return value, nil
	}
}

// ResolveString resolves references in one string. A string that is exactly
// one reference resolves to the referenced value with its type preserved;
// references embedded in a larger string are stringified in place.
func (r *Resolver) ResolveString(s string, block *Block) (any, error) {
	if match := refPattern.FindStringSubmatch(s); match != nil && match[0] == s {
		return r.lookupReference(match[1], block)
	}
	if match := envRefPattern.FindStringSubmatch(s); match != nil && match[0] == s {
		value, _ := r.ectx.EnvironmentValue(match[1])
		return value, nil
	}

	var resolveErr error
	out := refPattern.ReplaceAllStringFunc(s, func(m string) string {
		ref := refPattern.FindStringSubmatch(m)[1]
		value, err := r.lookupReference(ref, block)
		if err != nil {
			resolveErr = err
			return m
		}
		return script.Stringify(value)
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	out = envRefPattern.ReplaceAllStringFunc(out, func(m string) string {
		key := envRefPattern.FindStringSubmatch(m)[1]
		value, _ := r.ectx.EnvironmentValue(key)
		return value
	})
	return out, nil
}

// ResolveCode substitutes references in source code with JSON literals so the
// result remains syntactically valid in the target language.
func (r *Resolver) ResolveCode(code string, block *Block) (string, error) {
	var resolveErr error
	out := refPattern.ReplaceAllStringFunc(code, func(m string) string {
		ref := refPattern.FindStringSubmatch(m)[1]
		value, err := r.lookupReference(ref, block)
		if err != nil {
			resolveErr = err
			return m
		}
		return jsonLiteral(value)
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	out = envRefPattern.ReplaceAllStringFunc(out, func(m string) string {
		key := envRefPattern.FindStringSubmatch(m)[1]
		value, _ := r.ectx.EnvironmentValue(key)
		return jsonLiteral(value)
	})
	return out, nil
}

// ScriptGlobals returns the variable bindings handed to script engines for
// the given block: environment variables, workflow variables, the outputs of
// executed blocks keyed by id and by normalized name, and the enclosing loop
// or parallel scope when the block sits inside one.
func (r *Resolver) ScriptGlobals(block *Block) map[string]any {
	blocks := map[string]any{}
	for id, state := range r.ectx.BlockStates() {
		if state.Status != BlockStatusCompleted && state.Status != BlockStatusError {
			continue
		}
		blocks[id] = state.Output
		if state.BlockName != "" {
			blocks[NormalizeBlockName(state.BlockName)] = state.Output
		}
	}
	env := map[string]any{}
	for key, value := range r.ectx.Environment() {
		env[key] = value
	}
	globals := map[string]any{
		"env":       env,
		"variables": r.ectx.Variables(),
		"blocks":    blocks,
	}
	for _, kind := range []string{BlockTypeLoop, BlockTypeParallel} {
		groupID := r.enclosingGroup(block, kind)
		if groupID == "" {
			continue
		}
		if scope, ok := r.ectx.LoopScope(groupID); ok {
			globals[kind] = map[string]any{
				"index":       scope.Index,
				"currentItem": scope.Item,
				"items":       scope.Items,
			}
		}
	}
	return globals
}

func (r *Resolver) lookupReference(ref string, block *Block) (any, error) {
	head, rest, _ := strings.Cut(ref, ".")
	head = strings.TrimSpace(head)

	switch NormalizeBlockName(head) {
	case "variable", "variables":
		return r.lookupVariable(rest), nil
	case "loop":
		return r.lookupScope(BlockTypeLoop, rest, block)
	case "parallel":
		return r.lookupScope(BlockTypeParallel, rest, block)
	}

	blockID, err := r.resolveBlockID(head, block)
	if err != nil {
		return nil, err
	}
	if blockID == "" {
		return nil, nil
	}
	state, ok := r.ectx.BlockState(blockID)
	if !ok {
		return nil, nil
	}
	return lookupOutputPath(state, rest), nil
}

// resolveBlockID maps a reference head to a block id, trying the exact id
// first and the normalized display name second. Ambiguous names fail loudly
// rather than silently picking one of the candidates.
func (r *Resolver) resolveBlockID(head string, block *Block) (string, error) {
	if _, ok := r.workflow.GetBlock(head); ok {
		return head, nil
	}
	ids := r.workflow.BlockIDsByName(head)
	switch len(ids) {
	case 0:
		return "", nil
	case 1:
		return ids[0], nil
	default:
		return "", NewValidationError(block.ID, block.DisplayName(), head,
			fmt.Sprintf("ambiguous block name %q matches blocks %s", head, strings.Join(ids, ", ")))
	}
}

func (r *Resolver) lookupVariable(path string) any {
	name, rest, _ := strings.Cut(path, ".")
	value, ok := r.ectx.Variable(strings.TrimSpace(name))
	if !ok {
		return nil
	}
	if rest == "" {
		return value
	}
	if container := gabs.Wrap(value).Path(rest); container != nil {
		return container.Data()
	}
	return nil
}

// lookupScope resolves loop.* and parallel.* references against the nearest
// enclosing grouping of the requested kind.
func (r *Resolver) lookupScope(kind, field string, block *Block) (any, error) {
	groupID := r.enclosingGroup(block, kind)
	if groupID == "" {
		return nil, nil
	}
	scope, ok := r.ectx.LoopScope(groupID)
	if !ok {
		return nil, nil
	}
	name, rest, _ := strings.Cut(field, ".")
	var value any
	switch strings.TrimSpace(name) {
	case "index":
		value = scope.Index
	case "currentItem", "item":
		value = scope.Item
	case "items":
		value = scope.Items
	default:
		return nil, nil
	}
	if rest == "" {
		return value, nil
	}
	if container := gabs.Wrap(value).Path(rest); container != nil {
		return container.Data(), nil
	}
	return nil, nil
}

func (r *Resolver) enclosingGroup(block *Block, kind string) string {
	id := block.ID
	for {
		groupID, ok := r.workflow.GroupOf(id)
		if !ok {
			return ""
		}
		if groupBlock, ok := r.workflow.GetBlock(groupID); ok && groupBlock.Type == kind {
			return groupID
		}
		id = groupID
	}
}

// lookupOutputPath traverses a block state's output. A leading "output"
// segment is accepted as an alias for the output root, and the "status"
// segment falls back to the block's status when the output has no such key.
func lookupOutputPath(state *BlockState, path string) any {
	output := state.Output
	if path == "" || path == "output" {
		return output
	}
	container := gabs.Wrap(output)
	if result := container.Path(path); result != nil {
		return result.Data()
	}
	if trimmed, ok := strings.CutPrefix(path, "output."); ok {
		if result := container.Path(trimmed); result != nil {
			return result.Data()
		}
	}
	if path == "status" {
		return string(state.Status)
	}
	return nil
}

func jsonLiteral(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		data, _ = json.Marshal(fmt.Sprintf("%v", value))
	}
	return string(data)
}

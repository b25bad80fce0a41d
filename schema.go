package blockflow

import (
	"github.com/xeipuuv/gojsonschema"
)

// ValidateBlockInputs checks a block's resolved inputs against its declared
// input schema. Inputs that resolved to nil are treated as absent so that a
// dangling reference to a required field fails here rather than inside the
// tool. Blocks without a schema accept anything.
func ValidateBlockInputs(block *Block, inputs map[string]any) error {
	if len(block.InputSchema) == 0 {
		return nil
	}

	document := make(map[string]any, len(inputs))
	for key, value := range inputs {
		if value == nil {
			continue
		}
		document[key] = value
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(block.InputSchema),
		gojsonschema.NewGoLoader(document),
	)
	if err != nil {
		return NewValidationError(block.ID, block.DisplayName(), "inputSchema", err.Error())
	}
	if result.Valid() {
		return nil
	}

	first := result.Errors()[0]
	field := first.Field()
	if property, ok := first.Details()["property"].(string); ok {
		field = property
	}
	return NewValidationError(block.ID, block.DisplayName(), field, first.Description())
}

package tools

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/blockflow-ai/blockflow"
	"github.com/google/uuid"
)

// RandomInput defines the input parameters for the random tool
type RandomInput struct {
	Type    string   `json:"type"`    // uuid, number, float, string, choice, boolean
	Min     float64  `json:"min"`     // minimum value for number generation
	Max     float64  `json:"max"`     // maximum value for number generation
	Length  int      `json:"length"`  // length for string generation
	Choices []string `json:"choices"` // choices for selection
	Seed    int64    `json:"seed"`    // seed for reproducible randomness
}

const randomCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomTool generates random values
type RandomTool struct{}

func NewRandomTool() blockflow.Tool {
	return NewTypedTool(&RandomTool{})
}

func (t *RandomTool) Name() string {
	return "random"
}

func (t *RandomTool) Execute(ctx context.Context, params RandomInput, tctx blockflow.ToolContext) (any, error) {
	if params.Type == "" {
		params.Type = "uuid"
	}

	seed := params.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	switch strings.ToLower(params.Type) {
	case "uuid", "guid":
		return uuid.NewString(), nil

	case "number", "int", "integer":
		if params.Max <= params.Min {
			params.Max = params.Min + 100
		}
		return rng.Intn(int(params.Max)-int(params.Min)+1) + int(params.Min), nil

	case "float", "decimal":
		if params.Max <= params.Min {
			params.Max = params.Min + 1.0
		}
		return params.Min + rng.Float64()*(params.Max-params.Min), nil

	case "string", "text":
		length := params.Length
		if length <= 0 {
			length = 10
		}
		result := make([]byte, length)
		for i := range result {
			result[i] = randomCharset[rng.Intn(len(randomCharset))]
		}
		return string(result), nil

	case "choice", "select":
		if len(params.Choices) == 0 {
			return nil, fmt.Errorf("choices cannot be empty for choice type")
		}
		return params.Choices[rng.Intn(len(params.Choices))], nil

	case "boolean", "bool":
		return rng.Intn(2) == 1, nil

	default:
		return nil, fmt.Errorf("unsupported type: %s", params.Type)
	}
}

package analyst

import (
	"encoding/json"
	"fmt"
)

// Envelope is the analyst service's reply: an ordered sequence of typed
// content blocks plus the trace identifier from the response headers. The
// trace ID is diagnostic only.
type Envelope struct {
	TraceID string
	Blocks  []Block
}

// Block is one unit of a structured analyst response. It is a closed sum over
// TextBlock, SQLBlock and UnknownBlock.
type Block interface {
	// BlockType returns the wire discriminator ("text", "sql", ...).
	BlockType() string
}

// TextBlock carries explanatory content to surface to the caller verbatim.
type TextBlock struct {
	Text string
}

func (TextBlock) BlockType() string { return "text" }

// SQLBlock carries a generated statement to execute against the warehouse.
type SQLBlock struct {
	Statement string
}

func (SQLBlock) BlockType() string { return "sql" }

// UnknownBlock preserves a block with an unrecognized discriminator. New
// block types added by the service degrade to a no-op instead of an error.
type UnknownBlock struct {
	Type string
	Raw  json.RawMessage
}

func (b UnknownBlock) BlockType() string { return b.Type }

// askRequest is the wire shape of a message request.
type askRequest struct {
	Messages          []askMessage `json:"messages"`
	SemanticModelFile string       `json:"semantic_model_file"`
}

type askMessage struct {
	Role    string    `json:"role"`
	Content []askPart `json:"content"`
}

type askPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// askResponse is the wire shape of a message response.
type askResponse struct {
	Message struct {
		Content blockList `json:"content"`
	} `json:"message"`
}

type blockList []Block

func (l *blockList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}

	blocks := make([]Block, 0, len(raws))
	for i, raw := range raws {
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return fmt.Errorf("content block %d: %w", i, err)
		}

		switch head.Type {
		case "text":
			var b struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(raw, &b); err != nil {
				return fmt.Errorf("content block %d (text): %w", i, err)
			}
			blocks = append(blocks, TextBlock{Text: b.Text})

		case "sql":
			var b struct {
				Statement string `json:"statement"`
			}
			if err := json.Unmarshal(raw, &b); err != nil {
				return fmt.Errorf("content block %d (sql): %w", i, err)
			}
			blocks = append(blocks, SQLBlock{Statement: b.Statement})

		default:
			blocks = append(blocks, UnknownBlock{Type: head.Type, Raw: raw})
		}
	}

	*l = blocks
	return nil
}

// SemanticModelRef builds the fully-qualified stage path the service expects:
// @database.schema.stage/file.
func SemanticModelRef(database, schema, stage, file string) string {
	return fmt.Sprintf("@%s.%s.%s/%s", database, schema, stage, file)
}

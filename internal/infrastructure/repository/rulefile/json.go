package rulefile

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// nodeJSON converts a YAML value to JSON, keeping mapping key order.
// A plain string is taken as literal JSON text, so blocks can be pasted
// verbatim from the database.
func nodeJSON(node *yaml.Node) (json.RawMessage, error) {
	if node == nil || node.Kind == 0 {
		return nil, nil
	}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!str" {
		return json.RawMessage(node.Value), nil
	}

	var buf bytes.Buffer
	if err := writeNode(&buf, node); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}

func writeNode(buf *bytes.Buffer, node *yaml.Node) error {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeNode(buf, node.Content[0])
	case yaml.AliasNode:
		return writeNode(buf, node.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(node.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(node.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeNode(buf, node.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, item := range node.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeNode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case yaml.ScalarNode:
		var v any
		if err := node.Decode(&v); err != nil {
			return fmt.Errorf("decode scalar at line %d: %w", node.Line, err)
		}
		out, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode scalar at line %d: %w", node.Line, err)
		}
		buf.Write(out)
		return nil
	default:
		return fmt.Errorf("unsupported yaml node kind %d at line %d", node.Kind, node.Line)
	}
}

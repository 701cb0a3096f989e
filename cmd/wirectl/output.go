package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/danmuck/wirekit/internal/config"
	"github.com/danmuck/wirekit/internal/observability"
	"github.com/danmuck/wirekit/internal/protocol/schema"
)

// document is one decoded unit written to the output stream.
type document struct {
	Source    string     `json:"source" yaml:"source"`
	Index     int        `json:"index" yaml:"index"`
	Offset    int64      `json:"offset" yaml:"offset"`
	Timestamp *time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	CapLen    uint32     `json:"caplen,omitempty" yaml:"caplen,omitempty"`
	OrigLen   uint32     `json:"origlen,omitempty" yaml:"origlen,omitempty"`
	Link      string     `json:"link,omitempty" yaml:"link,omitempty"`
	Layer     any        `json:"layer" yaml:"layer"`
}

type encoder interface {
	Encode(doc document) error
	Close() error
}

func newEncoder(format string, w io.Writer) (encoder, error) {
	switch format {
	case config.FormatJSON:
		return &jsonEncoder{enc: json.NewEncoder(w)}, nil
	case config.FormatCBOR:
		mode, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
		if err != nil {
			return nil, err
		}
		return &cborEncoder{enc: mode.NewEncoder(w)}, nil
	case config.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		return &yamlEncoder{enc: enc}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// jsonEncoder writes one JSON object per line. Records marshal themselves
// in declaration order.
type jsonEncoder struct {
	enc *json.Encoder
}

func (e *jsonEncoder) Encode(doc document) error {
	if err := e.enc.Encode(doc); err != nil {
		return err
	}
	observability.RecordEncoded(config.FormatJSON)
	return nil
}

func (e *jsonEncoder) Close() error { return nil }

// cborEncoder writes a CBOR sequence. Layers are flattened to maps.
type cborEncoder struct {
	enc *cbor.Encoder
}

func (e *cborEncoder) Encode(doc document) error {
	doc.Layer = schema.Plain(doc.Layer)
	if err := e.enc.Encode(doc); err != nil {
		return err
	}
	observability.RecordEncoded(config.FormatCBOR)
	return nil
}

func (e *cborEncoder) Close() error { return nil }

// yamlEncoder writes a multi-document stream keeping field order.
type yamlEncoder struct {
	enc *yaml.Encoder
}

func (e *yamlEncoder) Encode(doc document) error {
	node, err := orderedNode(doc.Layer)
	if err != nil {
		return err
	}
	doc.Layer = node
	if err := e.enc.Encode(doc); err != nil {
		return err
	}
	observability.RecordEncoded(config.FormatYAML)
	return nil
}

func (e *yamlEncoder) Close() error { return e.enc.Close() }

func orderedNode(v any) (*yaml.Node, error) {
	switch t := v.(type) {
	case *schema.Record:
		out := &yaml.Node{Kind: yaml.MappingNode}
		var err error
		t.Range(func(name string, val any) bool {
			var child *yaml.Node
			if child, err = orderedNode(val); err != nil {
				err = fmt.Errorf("%s.%s: %w", t.Name(), name, err)
				return false
			}
			out.Content = append(out.Content, scalar(name), child)
			return true
		})
		return out, err
	case schema.Layer:
		return orderedNode(t.Record())
	case *schema.MultiMap:
		out := &yaml.Node{Kind: yaml.SequenceNode}
		for _, e := range t.Entries() {
			code, err := orderedNode(e.Code)
			if err != nil {
				return nil, err
			}
			val, err := orderedNode(e.Value)
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, &yaml.Node{
				Kind:    yaml.MappingNode,
				Content: []*yaml.Node{scalar("code"), code, scalar("value"), val},
			})
		}
		return out, nil
	case []any:
		out := &yaml.Node{Kind: yaml.SequenceNode}
		for _, it := range t {
			child, err := orderedNode(it)
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, child)
		}
		return out, nil
	case map[string]uint64:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := &yaml.Node{Kind: yaml.MappingNode}
		for _, k := range keys {
			out.Content = append(out.Content, scalar(k), &yaml.Node{
				Kind:  yaml.ScalarNode,
				Tag:   "!!int",
				Value: strconv.FormatUint(t[k], 10),
			})
		}
		return out, nil
	case []byte:
		return scalar(hex.EncodeToString(t)), nil
	}

	plain := schema.Plain(v)
	if b, ok := plain.([]byte); ok {
		return scalar(hex.EncodeToString(b)), nil
	}
	out := &yaml.Node{}
	if err := out.Encode(plain); err != nil {
		return nil, err
	}
	return out, nil
}

func scalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

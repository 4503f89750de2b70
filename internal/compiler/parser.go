package compiler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a flow document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrUnsupportedFormat is returned for files that are not JSON or YAML.
var ErrUnsupportedFormat = errors.New("unsupported flow format")

// FormatFor infers the document format from a file extension.
func FormatFor(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	default:
		return "", false
	}
}

// Parser converts raw flow documents into FlowDefinitions.
// Unknown fields are rejected so typos in a flow surface at load time.
type Parser struct{}

// NewParser creates a new parser instance.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes a single flow document.
func (p *Parser) Parse(data []byte, format Format) (*domain.FlowDefinition, error) {
	flow, err := p.decode(data, format)
	if err != nil {
		return nil, err
	}
	if err := check(flow); err != nil {
		return nil, err
	}
	return flow, nil
}

// ParseFile reads and decodes the flow at path.
// A document without id or name takes its id from the file name.
func (p *Parser) ParseFile(path string) (*domain.FlowDefinition, error) {
	format, ok := FormatFor(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow file: %w", err)
	}

	flow, err := p.decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if flow.ID == "" {
		name := filepath.Base(path)
		flow.ID = strings.TrimSuffix(name, filepath.Ext(name))
		flow.Name = flow.ID
	}
	if err := check(flow); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return flow, nil
}

func (p *Parser) decode(data []byte, format Format) (*domain.FlowDefinition, error) {
	var flow domain.FlowDefinition

	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&flow); err != nil {
			return nil, fmt.Errorf("failed to parse flow: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&flow); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("failed to parse flow: empty document")
			}
			return nil, fmt.Errorf("failed to parse flow: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	normalize(&flow)
	return &flow, nil
}

func check(flow *domain.FlowDefinition) error {
	if flow.ID == "" {
		return fmt.Errorf("flow missing id")
	}
	if len(flow.States) == 0 {
		return fmt.Errorf("flow %q has no states", flow.ID)
	}
	return nil
}

// normalize fills defaults that documents may leave out.
func normalize(flow *domain.FlowDefinition) {
	if flow.ID == "" {
		flow.ID = flow.Name
	}
	if flow.Name == "" {
		flow.Name = flow.ID
	}
	for i := range flow.States {
		st := &flow.States[i]
		inferKinds(st.PreActions)
		inferKinds(st.PostActions)
	}
}

// inferKinds sets the kind of actions written in the short form, e.g. `{function: save_reply}`.
func inferKinds(actions []domain.Action) {
	for i := range actions {
		a := &actions[i]
		if a.Kind != "" {
			continue
		}
		switch {
		case a.Function != "":
			a.Kind = domain.ActionInvoke
		case len(a.Items) > 0:
			a.Kind = domain.ActionSendMenu
		case a.Text != "":
			a.Kind = domain.ActionSendText
		}
	}
}

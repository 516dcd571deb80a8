// Package matrix turns a serial configuration document into the list of
// hardware variants the simulator matrix validates.
package matrix

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrConfiguration matches every ConfigError via errors.Is.
var ErrConfiguration = errors.New("matrix: configuration error")

// ConfigError reports a missing or malformed configuration document.
type ConfigError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := "configuration"
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// Format selects the document encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFor picks the format from a file extension. Anything other than
// .yaml or .yml is JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Scalar holds a pin or port value that documents write as either a number
// or a string.
type Scalar string

func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = Scalar(v)
		return nil
	}
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("pin value %s: %w", data, err)
	}
	*s = Scalar(n.String())
	return nil
}

func (s *Scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected scalar pin value", node.Line)
	}
	*s = Scalar(node.Value)
	return nil
}

// PinMapping is one TX/RX wiring option of a UART.
type PinMapping struct {
	TXPort Scalar `json:"txport" yaml:"txport"`
	TXPin  Scalar `json:"txpin" yaml:"txpin"`
	RXPort Scalar `json:"rxport" yaml:"rxport"`
	RXPin  Scalar `json:"rxpin" yaml:"rxpin"`
}

// Entry is one UART peripheral record.
type Entry struct {
	Name          string       `json:"name" yaml:"name"`
	Type          string       `json:"type" yaml:"type"`
	IncludedParts []string     `json:"included_parts" yaml:"included_parts"`
	Ports         []PinMapping `json:"ports" yaml:"ports"`
}

// Document is a parsed configuration document.
type Document struct {
	Classic    []Entry
	ZeroSeries []Entry
	// Legacy documents list entries in groups without a family split; each
	// entry's family comes from its type instead.
	Legacy []Entry
}

type currentShape struct {
	Classic    *[]Entry `json:"classic_uarts" yaml:"classic_uarts"`
	ZeroSeries *[]Entry `json:"zero_series_uarts" yaml:"zero_series_uarts"`
}

type legacyGroup struct {
	SerialPorts []Entry `json:"serial_ports" yaml:"serial_ports"`
}

// Load reads and parses the document at path.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, &ConfigError{Path: path, Reason: "read document", Err: err}
	}
	doc, err := Parse(data, FormatFor(path))
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) && ce.Path == "" {
			ce.Path = path
		}
		return Document{}, err
	}
	return doc, nil
}

// Parse accepts either the current object shape
// ({"classic_uarts": [...], "zero_series_uarts": [...]}) or the legacy array
// of {"serial_ports": [...]} groups.
func Parse(data []byte, format Format) (Document, error) {
	if format == FormatYAML {
		return parseYAML(data)
	}
	return parseJSON(data)
}

func parseJSON(data []byte) (Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Document{}, &ConfigError{Reason: "empty document"}
	}
	switch trimmed[0] {
	case '{':
		var cur currentShape
		if err := json.Unmarshal(trimmed, &cur); err != nil {
			return Document{}, &ConfigError{Reason: "decode object", Err: err}
		}
		return fromCurrent(cur)
	case '[':
		var groups []legacyGroup
		if err := json.Unmarshal(trimmed, &groups); err != nil {
			return Document{}, &ConfigError{Reason: "decode legacy groups", Err: err}
		}
		return fromLegacy(groups), nil
	}
	return Document{}, &ConfigError{Reason: "root must be an object or an array"}
}

func parseYAML(data []byte) (Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return Document{}, &ConfigError{Reason: "decode yaml", Err: err}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return Document{}, &ConfigError{Reason: "empty document"}
	}
	node := root.Content[0]
	switch node.Kind {
	case yaml.MappingNode:
		var cur currentShape
		if err := node.Decode(&cur); err != nil {
			return Document{}, &ConfigError{Reason: "decode object", Err: err}
		}
		return fromCurrent(cur)
	case yaml.SequenceNode:
		var groups []legacyGroup
		if err := node.Decode(&groups); err != nil {
			return Document{}, &ConfigError{Reason: "decode legacy groups", Err: err}
		}
		return fromLegacy(groups), nil
	}
	return Document{}, &ConfigError{Reason: "root must be a mapping or a sequence"}
}

func fromCurrent(cur currentShape) (Document, error) {
	if cur.Classic == nil && cur.ZeroSeries == nil {
		return Document{}, &ConfigError{Reason: "object has neither classic_uarts nor zero_series_uarts"}
	}
	var doc Document
	if cur.Classic != nil {
		doc.Classic = *cur.Classic
	}
	if cur.ZeroSeries != nil {
		doc.ZeroSeries = *cur.ZeroSeries
	}
	return doc, nil
}

func fromLegacy(groups []legacyGroup) Document {
	var doc Document
	for _, g := range groups {
		doc.Legacy = append(doc.Legacy, g.SerialPorts...)
	}
	return doc
}

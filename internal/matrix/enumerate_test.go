package matrix

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func mustParse(t *testing.T, doc string) Document {
	t.Helper()
	d, err := Parse([]byte(doc), FormatJSON)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return d
}

func TestEnumerateOneDevicePerWiring(t *testing.T) {
	const n, k, m = 3, 4, 5

	type port struct {
		TX  string `json:"txport"`
		TXP int    `json:"txpin"`
		RX  string `json:"rxport"`
		RXP int    `json:"rxpin"`
	}
	type entry struct {
		Name  string   `json:"name"`
		Type  string   `json:"type"`
		Parts []string `json:"included_parts"`
		Ports []port   `json:"ports"`
	}
	var entries []entry
	for i := 0; i < n; i++ {
		e := entry{Name: fmt.Sprintf("USART%d", i), Type: "USART_CLASSIC"}
		for j := 0; j < m; j++ {
			e.Parts = append(e.Parts, fmt.Sprintf("MCU%d", j))
		}
		for j := 0; j < k; j++ {
			e.Ports = append(e.Ports, port{TX: "D", TXP: 2 * j, RX: "D", RXP: 2*j + 1})
		}
		entries = append(entries, e)
	}
	data, err := json.Marshal(map[string]any{"classic_uarts": entries})
	if err != nil {
		t.Fatal(err)
	}

	variants := Enumerate(mustParse(t, string(data)))
	if len(variants) != n*k {
		t.Fatalf("expected %d variants, got %d", n*k, len(variants))
	}
	for _, v := range variants {
		if v.Device != "MCU0" {
			t.Errorf("expected representative MCU0, got=%s", v.Device)
		}
	}
	if idx, ok := variants[k+2].PinOption(); !ok || idx != 2 {
		t.Errorf("expected pin option 2 for variant %d, got=%d (set=%v)", k+2, idx, ok)
	}
}

func TestEnumerateGroupsAcrossEntries(t *testing.T) {
	doc := mustParse(t, `{
		"classic_uarts": [
			{"name": "USART0", "type": "USART_CLASSIC", "included_parts": ["ATmega328P"],
			 "ports": [{"txport": "D", "txpin": 1, "rxport": "D", "rxpin": 0}]},
			{"name": "USART0", "type": "USART_CLASSIC", "included_parts": ["ATmega168", "ATmega88"],
			 "ports": [{"txport": "D", "txpin": 1, "rxport": "D", "rxpin": 0},
			           {"txport": "B", "txpin": "3", "rxport": "C", "rxpin": "4"}]}
		],
		"zero_series_uarts": [
			{"name": "USART0", "type": "USART_0SERIES", "included_parts": ["ATtiny1614"],
			 "ports": [{"txport": "B", "txpin": 2, "rxport": "B", "rxpin": 3}]}
		]
	}`)

	variants := Enumerate(doc)
	if len(variants) != 3 {
		t.Fatalf("expected 3 variants, got %d: %+v", len(variants), variants)
	}

	want := []struct {
		device string
		family Family
		pin    string
		index  int
	}{
		{"ATmega328P", Classic, "PORTD[1,0]", 0},
		{"ATmega168", Classic, "TX=PORTB[3] RX=PORTC[4]", 1},
		{"ATtiny1614", ZeroSeries, "PORTB[2,3]", 0},
	}
	for i, w := range want {
		v := variants[i]
		if v.Device != w.device || v.Family != w.family || v.PinDescription() != w.pin || v.PinIndex != w.index {
			t.Errorf("variant %d = %+v (pin %q), want %+v", i, v, v.PinDescription(), w)
		}
	}
}

func TestEnumerateEntryWithoutPorts(t *testing.T) {
	doc := mustParse(t, `{"zero_series_uarts": [
		{"name": "USART1", "type": "USART_0SERIES", "included_parts": ["ATtiny3216", "ATtiny1616"]}
	]}`)

	variants := Enumerate(doc)
	if len(variants) != 1 {
		t.Fatalf("expected 1 variant, got %d", len(variants))
	}
	if _, ok := variants[0].PinOption(); ok {
		t.Error("expected absent pin option")
	}
	if variants[0].PinDescription() != "" {
		t.Errorf("expected empty pin description, got=%q", variants[0].PinDescription())
	}
}

func TestEnumerateDropsEntriesWithoutDevices(t *testing.T) {
	doc := mustParse(t, `{"classic_uarts": [
		{"name": "USART9", "type": "USART_CLASSIC", "ports": [{"txport": "A", "txpin": 0, "rxport": "A", "rxpin": 1}]}
	]}`)
	if got := Enumerate(doc); len(got) != 0 {
		t.Fatalf("expected no variants, got %+v", got)
	}
}

func TestEnumerateLegacyShape(t *testing.T) {
	doc := mustParse(t, `[
		{"serial_ports": [
			{"name": "USART0", "type": "USART_CLASSIC", "included_parts": ["ATmega328P"],
			 "ports": [{"txport": "D", "txpin": 1, "rxport": "D", "rxpin": 0}]}
		]},
		{"serial_ports": [
			{"name": "USART0", "type": "USART_0SERIES", "included_parts": ["ATtiny814"]}
		]}
	]`)

	variants := Enumerate(doc)
	if len(variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(variants))
	}
	if variants[0].Family != Classic || variants[1].Family != ZeroSeries {
		t.Errorf("expected CLASSIC then ZERO_SERIES, got %s then %s", variants[0].Family, variants[1].Family)
	}
}

func TestParseStructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", "  "},
		{"scalar root", `"hello"`},
		{"unknown object", `{"uarts": []}`},
		{"bad json", `{"classic_uarts": [}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), FormatJSON)
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configurations.yaml")
	os.WriteFile(path, []byte(`
classic_uarts:
  - name: USART0
    type: USART_CLASSIC
    included_parts: [ATmega328P]
    ports:
      - {txport: D, txpin: 1, rxport: D, rxpin: 0}
`), 0o644)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	variants := Enumerate(doc)
	if len(variants) != 1 || variants[0].String() != "MCU=ATmega328P UART=USART0 PIN=PORTD[1,0]" {
		t.Fatalf("unexpected variants: %+v", variants)
	}
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	_, err := Load(path)
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConfigError, got %T", err)
	}
	if ce.Path != path {
		t.Errorf("expected path=%s, got=%s", path, ce.Path)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped ErrNotExist, got %v", err)
	}
}

func TestLoadErrorCarriesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configurations.json")
	os.WriteFile(path, []byte(`42`), 0o644)
	_, err := Load(path)
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Path != path {
		t.Fatalf("expected ConfigError for %s, got %v", path, err)
	}
}

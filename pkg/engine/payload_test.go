package engine

import (
	"encoding/json"
	"testing"
)

func decodePayload(t *testing.T, raw string) map[string]interface{} {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	return payload
}

func TestExtractString(t *testing.T) {
	payload := decodePayload(t, `{
		"id": "/subscriptions/sub1/vnet",
		"enabled": true,
		"capacity": 3,
		"properties": {
			"provisioningState": "Succeeded",
			"subnets": [
				{"id": "/subscriptions/sub1/subnet0"},
				{"id": "/subscriptions/sub1/subnet1"}
			]
		}
	}`)

	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{path: "id", want: "/subscriptions/sub1/vnet", ok: true},
		{path: "enabled", want: "true", ok: true},
		{path: "capacity", want: "3", ok: true},
		{path: "properties.provisioningState", want: "Succeeded", ok: true},
		{path: "properties.subnets.1.id", want: "/subscriptions/sub1/subnet1", ok: true},
		{path: ".id", want: "/subscriptions/sub1/vnet", ok: true},
		{path: "missing", ok: false},
		{path: "properties.missing", ok: false},
		{path: "properties.subnets.7.id", ok: false},
		{path: "id.nested", ok: false},
	}

	for _, tt := range tests {
		got, ok := extractString(payload, tt.path)
		if ok != tt.ok {
			t.Errorf("extractString(%q): expected ok=%v, got %v", tt.path, tt.ok, ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("extractString(%q): expected %q, got %q", tt.path, tt.want, got)
		}
	}
}

func TestExtractString_ObjectRendersAsJSON(t *testing.T) {
	payload := decodePayload(t, `{"tags": {"env": "prod"}}`)

	got, ok := extractString(payload, "tags")
	if !ok {
		t.Fatal("Expected tags to resolve")
	}
	if got != `{"env":"prod"}` {
		t.Errorf("Expected compact JSON rendering, got %q", got)
	}
}

func TestPayloadString(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{name: "nil", in: nil, want: ""},
		{name: "string", in: "value", want: "value"},
		{name: "bool", in: false, want: "false"},
		{name: "integer float", in: float64(42), want: "42"},
		{name: "fractional float", in: 1.5, want: "1.5"},
		{name: "json number", in: json.Number("9007199254740993"), want: "9007199254740993"},
	}

	for _, tt := range tests {
		if got := payloadString(tt.in); got != tt.want {
			t.Errorf("payloadString(%s): expected %q, got %q", tt.name, tt.want, got)
		}
	}
}

func TestFlattenPayload(t *testing.T) {
	payload := decodePayload(t, `{
		"name": "vnet-demo",
		"properties": {
			"provisioningState": "Succeeded",
			"addressSpace": {"addressPrefixes": ["10.0.0.0/16", "10.1.0.0/16"]}
		}
	}`)

	out := make(map[string]string)
	flattenPayload("", payload, out)

	checks := []struct {
		key  string
		want string
	}{
		{key: "name", want: "vnet-demo"},
		{key: "properties.provisioningState", want: "Succeeded"},
		{key: "properties.addressSpace.addressPrefixes.0", want: "10.0.0.0/16"},
		{key: "properties.addressSpace.addressPrefixes.1", want: "10.1.0.0/16"},
	}
	for _, c := range checks {
		if out[c.key] != c.want {
			t.Errorf("Expected %s=%q, got %q", c.key, c.want, out[c.key])
		}
	}
	if len(out) != len(checks) {
		t.Errorf("Expected %d flattened keys, got %d: %+v", len(checks), len(out), out)
	}
}

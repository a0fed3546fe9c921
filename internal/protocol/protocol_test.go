package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeBaseRoutesByType(t *testing.T) {
	raw, _ := json.Marshal(HelloMsg{
		Type:            TypeHello,
		ProtocolVersion: Version,
		PlayerName:      "Alice",
	})
	base, err := DecodeBase(raw)
	if err != nil {
		t.Fatalf("DecodeBase: %v", err)
	}
	if base.Type != TypeHello || base.ProtocolVersion != Version {
		t.Fatalf("base = %+v", base)
	}

	if _, err := DecodeBase([]byte("{not json")); err == nil {
		t.Fatalf("malformed frame accepted")
	}
}

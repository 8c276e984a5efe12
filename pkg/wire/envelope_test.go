package wire_test

import (
	"strings"
	"testing"
	"time"

	"github.com/lightforgemedia/go-livewire/pkg/wire"
)

func TestNewGeneratesFreshIDs(t *testing.T) {
	a, err := wire.New("CHAT", map[string]string{"text": "hi"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	b, err := wire.New("CHAT", nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if a.ID == "" || b.ID == "" {
		t.Fatal("expected non-empty ids")
	}
	if a.ID == b.ID {
		t.Fatalf("expected fresh id per envelope, got %q twice", a.ID)
	}
	now := time.Now().UnixMilli()
	if a.Timestamp <= 0 || a.Timestamp > now+1000 {
		t.Errorf("timestamp %d not plausible epoch-ms (now %d)", a.Timestamp, now)
	}
}

func TestNewRejectsEmptyType(t *testing.T) {
	if _, err := wire.New("", nil); err == nil {
		t.Fatal("expected error for empty type")
	}
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	cases := map[string]string{
		"invalid json": `{"id": "x", "type":`,
		"not an object": `"just a string"`,
		"missing type": `{"id": "x", "payload": {}}`,
	}
	for name, raw := range cases {
		if _, err := wire.Decode([]byte(raw)); err == nil {
			t.Errorf("%s: expected decode error", name)
		}
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	env, err := wire.New(wire.TypeSubscribe, wire.ChannelPayload{Channel: "news"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := wire.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	var p wire.ChannelPayload
	if err := got.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if p.Channel != "news" {
		t.Errorf("expected channel 'news', got %q", p.Channel)
	}
	if got.ID != env.ID || got.Type != env.Type || got.Timestamp != env.Timestamp {
		t.Errorf("round trip mismatch: %+v vs %+v", got, env)
	}
}

func TestIsReserved(t *testing.T) {
	for _, typ := range []string{wire.TypePing, wire.TypePong, wire.TypeSubscribe, wire.TypeUnsubscribe} {
		if !wire.IsReserved(typ) {
			t.Errorf("%s should be reserved", typ)
		}
	}
	for _, typ := range []string{"CHAT", "ping", "Pong", ""} {
		if wire.IsReserved(typ) {
			t.Errorf("%q should not be reserved", typ)
		}
	}
}

func TestDecodePayloadNullLeavesValueUntouched(t *testing.T) {
	env, err := wire.New(wire.TypePing, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	data, _ := env.Encode()
	if strings.Contains(string(data), `"payload"`) {
		t.Errorf("nil payload should be omitted, got %s", data)
	}
	got, err := wire.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	p := wire.ChannelPayload{Channel: "unchanged"}
	if err := got.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if p.Channel != "unchanged" {
		t.Errorf("null payload should leave value untouched, got %q", p.Channel)
	}
}

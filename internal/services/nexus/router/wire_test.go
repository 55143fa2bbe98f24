package router

import (
	"testing"

	nexuserrors "github.com/louisbranch/autonexus/internal/platform/errors"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name        string
		raw         string
		wantControl string
		wantPacket  string
		wantErr     bool
	}{
		{name: "control", raw: `{"action":"teleport","uuid":"x","server":"lobby"}`, wantControl: ActionTeleport},
		{name: "envelope", raw: `{"target":"ALL","packet":{"type":"DISPATCH_COMMAND","payload":"say hi"}}`, wantPacket: PacketDispatchCommand},
		{name: "action wins over packet", raw: `{"action":"RELOAD_NETWORK","packet":{"type":"PING"}}`, wantControl: ActionReloadNetwork},
		{name: "not json", raw: `not json`, wantErr: true},
		{name: "empty", raw: `  `, wantErr: true},
		{name: "array", raw: `[1,2]`, wantErr: true},
		{name: "blank action", raw: `{"action":" "}`, wantErr: true},
		{name: "missing packet", raw: `{"target":"ALL"}`, wantErr: true},
		{name: "packet without type", raw: `{"target":"ALL","packet":{"payload":"x"}}`, wantErr: true},
		{name: "wrong field type", raw: `{"action":"BROADCAST","message":5}`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Decode([]byte(tc.raw))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", msg)
				}
				if code := nexuserrors.CodeOf(err); code != nexuserrors.CodeMalformedMessage {
					t.Fatalf("code = %s, want %s", code, nexuserrors.CodeMalformedMessage)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tc.wantControl != "" {
				if msg.Control == nil || msg.Control.Action != tc.wantControl {
					t.Fatalf("control = %+v, want action %s", msg.Control, tc.wantControl)
				}
				return
			}
			if msg.Envelope == nil || msg.Envelope.Packet.Type != tc.wantPacket {
				t.Fatalf("envelope = %+v, want packet %s", msg.Envelope, tc.wantPacket)
			}
		})
	}
}

func TestIdentityAccepts(t *testing.T) {
	self := Identity{Name: "lobby-1", Group: "Lobby"}
	cases := []struct {
		name     string
		envelope Envelope
		want     bool
	}{
		{name: "all", envelope: Envelope{Target: "all", Packet: &Packet{Type: PacketPing}}, want: true},
		{name: "own name", envelope: Envelope{Target: "LOBBY-1", Packet: &Packet{Type: PacketPing}}, want: true},
		{name: "own group", envelope: Envelope{Target: TargetGroup, Packet: &Packet{Type: PacketPing, TargetGroup: "lobby"}}, want: true},
		{name: "other group", envelope: Envelope{Target: TargetGroup, Packet: &Packet{Type: PacketPing, TargetGroup: "survival"}}, want: false},
		{name: "other name", envelope: Envelope{Target: "survival-1", Packet: &Packet{Type: PacketPing}}, want: false},
		{name: "no packet", envelope: Envelope{Target: "survival-1"}, want: false},
	}
	for _, tc := range cases {
		if got := self.Accepts(tc.envelope); got != tc.want {
			t.Fatalf("%s: accepts = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIdentityWithoutGroupIgnoresBlankTargetGroup(t *testing.T) {
	self := Identity{Name: "lobby-1"}
	envelope := Envelope{Target: "survival-1", Packet: &Packet{Type: PacketPing}}
	if self.Accepts(envelope) {
		t.Fatal("blank group must not match a missing target group")
	}
}

func TestParseTarget(t *testing.T) {
	cases := []struct {
		raw        string
		wantTarget string
		wantGroup  string
	}{
		{raw: "group:skyblock", wantTarget: TargetGroup, wantGroup: "skyblock"},
		{raw: "GROUP: lobby", wantTarget: TargetGroup, wantGroup: "lobby"},
		{raw: "all", wantTarget: TargetAll},
		{raw: "*", wantTarget: TargetAll},
		{raw: " survival-2 ", wantTarget: "survival-2"},
		{raw: "group:", wantTarget: "group:"},
	}
	for _, tc := range cases {
		target, group := ParseTarget(tc.raw)
		if target != tc.wantTarget || group != tc.wantGroup {
			t.Fatalf("ParseTarget(%q) = %q, %q, want %q, %q", tc.raw, target, group, tc.wantTarget, tc.wantGroup)
		}
	}
}

func TestParseSyncPayload(t *testing.T) {
	const id = "6f1c1b6e-2a8e-4c53-9a7c-6f3f3d1f0b2a"
	cases := []struct {
		payload   string
		wantField string
		wantValue string
		wantErr   bool
	}{
		{payload: id},
		{payload: `{"uuid":"` + id + `"}`},
		{payload: id + ":isAdmin:true", wantField: "isAdmin", wantValue: "true"},
		{payload: id + ":motto:a:b", wantField: "motto", wantValue: "a:b"},
		{payload: "nope", wantErr: true},
		{payload: `{"uuid":`, wantErr: true},
	}
	for _, tc := range cases {
		event, err := parseSyncPayload(tc.payload)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseSyncPayload(%q): expected error", tc.payload)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseSyncPayload(%q): %v", tc.payload, err)
		}
		if event.UUID.String() != id || event.Field != tc.wantField || event.Value != tc.wantValue {
			t.Fatalf("parseSyncPayload(%q) = %+v", tc.payload, event)
		}
	}
}

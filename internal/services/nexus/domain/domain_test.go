package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestDecodePlayerRecordToleratesLuaEmptyTable(t *testing.T) {
	id := uuid.MustParse("3f0c5b3e-7c1a-4d55-9a55-0c7d9f0a1b2c")
	cases := []struct {
		name string
		blob string
		want Metadata
	}{
		{name: "empty array", blob: `{"uuid":"` + id.String() + `","lastSeenName":"Steve","currentServer":"lobby-1","metadata":[]}`, want: Metadata{}},
		{name: "null", blob: `{"uuid":"` + id.String() + `","metadata":null}`, want: Metadata{}},
		{name: "missing", blob: `{"uuid":"` + id.String() + `"}`, want: Metadata{}},
		{name: "scalars", blob: `{"uuid":"` + id.String() + `","metadata":{"balance_default":"100","level":7,"vip":true}}`, want: Metadata{"balance_default": "100", "level": "7", "vip": "true"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record, err := DecodePlayerRecord([]byte(tc.blob))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if record.UUID != id {
				t.Fatalf("uuid = %s, want %s", record.UUID, id)
			}
			if len(record.Metadata) != len(tc.want) {
				t.Fatalf("metadata = %v, want %v", record.Metadata, tc.want)
			}
			for k, v := range tc.want {
				if record.Metadata[k] != v {
					t.Fatalf("metadata[%q] = %q, want %q", k, record.Metadata[k], v)
				}
			}
		})
	}
}

func TestDecodePlayerRecordRejectsGarbage(t *testing.T) {
	if _, err := DecodePlayerRecord([]byte(`{"metadata":[1,2]}`)); err == nil {
		t.Fatal("expected non-empty array metadata to fail")
	}
	if _, err := DecodePlayerRecord([]byte(`not json`)); err == nil {
		t.Fatal("expected invalid json to fail")
	}
}

func TestMetadataNumberFallsBackToZero(t *testing.T) {
	m := Metadata{"balance_default": "42.5", "broken": "lots"}
	if got := m.Number("balance_default"); got != 42.5 {
		t.Fatalf("number = %v, want 42.5", got)
	}
	if got := m.Number("broken"); got != 0 {
		t.Fatalf("unparseable number = %v, want 0", got)
	}
	if got := m.Number("missing"); got != 0 {
		t.Fatalf("missing number = %v, want 0", got)
	}
}

func TestRecordOnline(t *testing.T) {
	cases := map[string]bool{"lobby-1": true, "offline": false, "OFFLINE": false, "": false}
	for server, want := range cases {
		if got := (PlayerRecord{CurrentServer: server}).Online(); got != want {
			t.Fatalf("Online(%q) = %v, want %v", server, got, want)
		}
	}
}

func TestFieldHelpers(t *testing.T) {
	if !IsBalanceField("Balance_lobby") || !IsBalanceField("balance") {
		t.Fatal("expected balance prefix to be case-insensitive")
	}
	if IsBalanceField("kills_default") {
		t.Fatal("did not expect kills to be a balance field")
	}
	if got := ResolveField("balance", ""); got != "balance_default" {
		t.Fatalf("resolve = %q, want %q", got, "balance_default")
	}
	if got := ResolveField("balance", "skyblock"); got != "balance_skyblock" {
		t.Fatalf("resolve = %q, want %q", got, "balance_skyblock")
	}
	if got := FormatAmount(100); got != "100" {
		t.Fatalf("format = %q, want %q", got, "100")
	}
	if got := FormatAmount(-2.5); got != "-2.5" {
		t.Fatalf("format = %q, want %q", got, "-2.5")
	}
}

func TestTxTypeFor(t *testing.T) {
	cases := []struct {
		delta float64
		want  TxType
	}{
		{delta: 10, want: TxCredit},
		{delta: -1, want: TxDebit},
		{delta: 0, want: TxAdjust},
	}
	for _, tc := range cases {
		if got := TxTypeFor(tc.delta); got != tc.want {
			t.Fatalf("TxTypeFor(%v) = %s, want %s", tc.delta, got, tc.want)
		}
	}
}

func TestTransactionEntryDecodesStringTimestamp(t *testing.T) {
	var entry TransactionEntry
	blob := `{"type":"CREDIT","amount":100,"otherPlayer":"","timestamp":"1700000000000","reason":"quest"}`
	if err := json.Unmarshal([]byte(blob), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry.Timestamp != 1700000000000 || entry.Amount != 100 || entry.Type != TxCredit {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.Counterparty() != uuid.Nil {
		t.Fatalf("counterparty = %s, want nil", entry.Counterparty())
	}
}

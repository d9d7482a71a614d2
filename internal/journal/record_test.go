package journal_test

import (
	"errors"
	"testing"

	"miniq/internal/journal"
)

func TestParseRecordKeepsPipesInPayload(t *testing.T) {
	rec, err := journal.ParseRecord("0abc|resize|w=10|h=20")
	if err != nil {
		t.Fatalf("ParseRecord failed: %v", err)
	}
	if rec.ID != "0abc" || rec.Type != "resize" || rec.Payload != "w=10|h=20" {
		t.Fatalf("unexpected record %#v", rec)
	}
	line, err := journal.EncodeRecord(rec)
	if err != nil || line != "0abc|resize|w=10|h=20" {
		t.Fatalf("EncodeRecord = %q, %v", line, err)
	}
}

func TestParseRecordEmptyPayload(t *testing.T) {
	rec, err := journal.ParseRecord("id|type|")
	if err != nil {
		t.Fatalf("ParseRecord failed: %v", err)
	}
	if rec.Payload != "" {
		t.Fatalf("expected empty payload, got %q", rec.Payload)
	}
}

func TestParseRecordRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"no separators": "justtext",
		"missing type":  "id|",
		"no payload":    "id|type",
		"empty id":      "|type|x",
		"leading space": " id|type|x",
		"empty type":    "id||x",
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := journal.ParseRecord(line); !errors.Is(err, journal.ErrMalformedRecord) {
				t.Fatalf("ParseRecord(%q): expected ErrMalformedRecord, got %v", line, err)
			}
		})
	}
}

func TestEncodeRecordRejectsNewlines(t *testing.T) {
	if _, err := journal.EncodeRecord(journal.Record{ID: "a", Type: "t", Payload: "x\ny"}); !errors.Is(err, journal.ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
	if _, err := journal.EncodeRecord(journal.Record{ID: "a|b", Type: "t"}); !errors.Is(err, journal.ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord for id with separator, got %v", err)
	}
}

package codec

import (
	"strings"
	"testing"
)

type sample struct {
	ID   string `json:"id" msgpack:"id"`
	Hits int    `json:"hits" msgpack:"hits"`
}

func TestJSONRoundTrip(t *testing.T) {
	b, err := (JSON{}).Encode(sample{ID: "u42", Hits: 7})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var got sample
	if err := (JSON{}).Decode(b, &got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.ID != "u42" || got.Hits != 7 {
		t.Fatalf("round trip = %+v", got)
	}
}

func TestMsgpackRoundTrip(t *testing.T) {
	b, err := (Msgpack{}).Encode(sample{ID: "u42", Hits: 7})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var got sample
	if err := (Msgpack{}).Decode(b, &got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.ID != "u42" || got.Hits != 7 {
		t.Fatalf("round trip = %+v", got)
	}
}

func TestCBORDeterministic(t *testing.T) {
	c := MustCBOR(true)
	v := map[string]int{"b": 2, "a": 1, "c": 3}
	b1, err := c.Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b2, err := c.Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(b1) != string(b2) {
		t.Fatalf("deterministic encode produced different bytes")
	}
	var got map[string]int
	if err := c.Decode(b1, &got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got["b"] != 2 {
		t.Fatalf("round trip = %v", got)
	}
}

func TestBytesAndStringGuards(t *testing.T) {
	if _, err := (Bytes{}).Encode("nope"); err == nil {
		t.Fatalf("Bytes.Encode accepted a string")
	}
	b, err := (Bytes{}).Encode([]byte("raw"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out []byte
	if err := (Bytes{}).Decode(b, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(out) != "raw" {
		t.Fatalf("round trip = %q", out)
	}

	var s string
	if err := (String{}).Decode([]byte("hi"), &s); err != nil || s != "hi" {
		t.Fatalf("String.Decode = %q, %v", s, err)
	}
	if err := (String{}).Decode([]byte("hi"), &out); err == nil {
		t.Fatalf("String.Decode accepted *[]byte dest")
	}
}

func TestLimitRejectsOversized(t *testing.T) {
	c := Limit{Inner: JSON{}, MaxDecode: 4}
	var got sample
	err := c.Decode([]byte(`{"id":"u42","hits":7}`), &got)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("Decode err = %v", err)
	}

	// under the cap passes through
	c.MaxDecode = 1 << 10
	if err := c.Decode([]byte(`{"id":"u1","hits":1}`), &got); err != nil {
		t.Fatalf("Decode under cap: %v", err)
	}
}

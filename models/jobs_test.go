package models

import (
	"testing"
)

func TestDecodeJobPayloadRoundTrip(t *testing.T) {
	original := &NewHLSResolutionPayload{
		VideoUUID:   "abc",
		Resolution:  720,
		FPS:         25,
		CopyCodecs:  true,
		HasChildren: true,
	}

	data, err := EncodeJobPayload(original)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := DecodeJobPayload(data)
	if err != nil {
		t.Fatal(err)
	}

	got, ok := decoded.(*NewHLSResolutionPayload)
	if !ok {
		t.Fatalf("decoded into %T", decoded)
	}
	if *got != *original {
		t.Fatalf("got %+v, want %+v", got, original)
	}
}

func TestDecodeJobPayloadRejectsUnknownTag(t *testing.T) {
	if _, err := DecodeJobPayload([]byte(`{"type":"reticulate-splines","payload":{}}`)); err == nil {
		t.Fatal("expected an error for an unknown job type")
	}
}

func TestDecodeJobPayloadRejectsGarbage(t *testing.T) {
	if _, err := DecodeJobPayload([]byte("not json")); err == nil {
		t.Fatal("expected an error for a malformed envelope")
	}
}

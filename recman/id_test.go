package recman

import (
	"bytes"
	"errors"
	"testing"
)

var sampleIDBytes = []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

const sampleID = ObjectID(0x0102030405060708)

func TestIDConverter_MarshalID(t *testing.T) {
	t.Parallel()

	c := IDConverter{}
	got := c.MarshalID(sampleID)

	if len(got) != c.Size() {
		t.Errorf("MarshalID() want %d bytes, got %d", c.Size(), len(got))
	}
	if !bytes.Equal(got, sampleIDBytes) {
		t.Errorf("MarshalID() want=%#v, got=%#v", sampleIDBytes, got)
	}
}

func TestIDConverter_UnmarshalID(t *testing.T) {
	t.Parallel()

	c := IDConverter{}

	got, err := c.UnmarshalID(sampleIDBytes)
	if err != nil {
		t.Errorf("UnmarshalID() unexpected error: %v", err)
	}
	if got != sampleID {
		t.Errorf("UnmarshalID() want=%d, got=%d", sampleID, got)
	}

	if _, err := c.UnmarshalID(sampleIDBytes[:5]); !errors.Is(err, ErrFormat) {
		t.Errorf("UnmarshalID() on short buffer want=ErrFormat, got=%v", err)
	}
}

func TestIDConverter_RoundTrip(t *testing.T) {
	t.Parallel()

	c := IDConverter{}
	for _, id := range []ObjectID{0, 1, 255, 1 << 20, 1<<64 - 1} {
		got, err := c.UnmarshalID(c.MarshalID(id))
		if err != nil {
			t.Errorf("round trip of %d unexpected error: %v", id, err)
		}
		if got != id {
			t.Errorf("round trip want=%d, got=%d", id, got)
		}
	}
}

func Test_slotAddr_RoundTrip(t *testing.T) {
	t.Parallel()

	a := slotAddr{page: 0xCAFE, slot: 42}

	buf := make([]byte, linkPtrSz)
	a.marshalInto(buf)

	got, err := unmarshalSlotAddr(buf)
	if err != nil {
		t.Errorf("unmarshalSlotAddr() unexpected error: %v", err)
	}
	if got != a {
		t.Errorf("unmarshalSlotAddr() want=%v, got=%v", a, got)
	}

	if _, err := unmarshalSlotAddr(buf[:3]); !errors.Is(err, ErrFormat) {
		t.Errorf("unmarshalSlotAddr() on short buffer want=ErrFormat, got=%v", err)
	}
}

package batch

import (
	"bytes"
	"errors"
	"testing"
)

type op struct {
	del   bool
	key   string
	value string
}

// testHandler records all operations for verification.
type testHandler struct {
	ops []op
	err error
}

func (h *testHandler) Put(key, value []byte) error {
	h.ops = append(h.ops, op{key: string(key), value: string(value)})
	return h.err
}

func (h *testHandler) Delete(key []byte) error {
	h.ops = append(h.ops, op{del: true, key: string(key)})
	return h.err
}

func TestWriteBatchEmpty(t *testing.T) {
	wb := New()
	if wb.Count() != 0 || wb.Size() != HeaderSize {
		t.Fatalf("Count=%d Size=%d", wb.Count(), wb.Size())
	}
	var h testHandler
	if err := wb.Iterate(&h); err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(h.ops) != 0 {
		t.Errorf("got %d ops", len(h.ops))
	}
}

func TestWriteBatchIterateInOrder(t *testing.T) {
	wb := New()
	wb.SetSequence(42)
	wb.Put([]byte("a"), []byte("1"))
	wb.Delete([]byte("b"))
	wb.Put([]byte("a"), []byte{})

	if wb.Count() != 3 || wb.Sequence() != 42 {
		t.Fatalf("Count=%d Sequence=%d", wb.Count(), wb.Sequence())
	}

	// Round trip through the raw bytes, as replay does.
	decoded, err := NewFromData(bytes.Clone(wb.Data()))
	if err != nil {
		t.Fatal(err)
	}
	var h testHandler
	if err := decoded.Iterate(&h); err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	want := []op{{key: "a", value: "1"}, {del: true, key: "b"}, {key: "a"}}
	if len(h.ops) != len(want) {
		t.Fatalf("got %d ops, want %d", len(h.ops), len(want))
	}
	for i := range want {
		if h.ops[i] != want[i] {
			t.Errorf("op %d = %+v, want %+v", i, h.ops[i], want[i])
		}
	}
}

func TestWriteBatchClear(t *testing.T) {
	wb := New()
	wb.SetSequence(7)
	wb.Put([]byte("k"), []byte("v"))
	wb.Clear()
	if wb.Count() != 0 || wb.Sequence() != 0 || wb.Size() != HeaderSize {
		t.Fatalf("Clear left Count=%d Sequence=%d Size=%d", wb.Count(), wb.Sequence(), wb.Size())
	}
}

func TestWriteBatchHandlerErrorStops(t *testing.T) {
	wb := New()
	wb.Put([]byte("a"), []byte("1"))
	wb.Put([]byte("b"), []byte("2"))

	stop := errors.New("stop")
	h := testHandler{err: stop}
	if err := wb.Iterate(&h); !errors.Is(err, stop) {
		t.Fatalf("err = %v, want stop", err)
	}
	if len(h.ops) != 1 {
		t.Errorf("handler called %d times, want 1", len(h.ops))
	}
}

func TestWriteBatchCorruption(t *testing.T) {
	good := New()
	good.Put([]byte("key"), []byte("value"))

	tests := []struct {
		name string
		data func() []byte
		want error
	}{
		{"too small", func() []byte { return make([]byte, HeaderSize-1) }, ErrTooSmall},
		{"unknown tag", func() []byte { return append(bytes.Clone(good.Data()), 0x7f) }, ErrCorrupted},
		{"truncated value", func() []byte { d := good.Data(); return bytes.Clone(d[:len(d)-2]) }, ErrCorrupted},
		{"count mismatch", func() []byte {
			d := bytes.Clone(good.Data())
			d[8] = 5
			return d
		}, ErrCorrupted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data()
			wb, err := NewFromData(data)
			if err == nil {
				err = wb.Iterate(&testHandler{})
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

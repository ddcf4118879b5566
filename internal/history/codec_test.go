package history

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type memStore struct {
	blob    []byte
	loadErr error
}

func (m *memStore) Load(ctx context.Context) ([]byte, error) {
	return m.blob, m.loadErr
}

func (m *memStore) Save(ctx context.Context, blob []byte) error {
	m.blob = blob
	return nil
}

func TestEncodeDecode(t *testing.T) {
	in := []Sample{
		{Timestamp: 100, MyHashrate: 1000, PoolHashrate: 5e6, NetworkHashrate: 2.5e9, Price: 150},
		{Timestamp: 110, MyHashrate: 1100, PoolHashrate: 5e6, NetworkHashrate: 2.5e9, Price: 151},
	}

	blob, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	out, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("Decode() len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d = %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	blob, err := Encode([]Sample{{Timestamp: 100, MyHashrate: 1000}})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	tampered := strings.Replace(string(blob), "1000", "9000", 1)
	if _, err := Decode([]byte(tampered)); !errors.Is(err, ErrChecksum) {
		t.Errorf("Decode() error = %v, want ErrChecksum", err)
	}
}

func TestDecodeBareLog(t *testing.T) {
	bare := `{"timestamps":[1,2,3],"myHash":[10,20,30],"poolHash":[1,1,1],"netHash":[5,5],"price":[7]}`

	out, err := Decode([]byte(bare))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d, want shortest array length 2", len(out))
	}
	if out[0].Price != 7 || out[1].Price != 0 {
		t.Errorf("price = %v, %v; want 7, 0", out[0].Price, out[1].Price)
	}
}

func TestSeriesLoadSave(t *testing.T) {
	clock := fixedClock(1000)
	store := &memStore{}

	src := NewSeries(time.Hour)
	src.SetClock(clock)
	src.Append(Sample{Timestamp: 900, MyHashrate: 1})
	src.Append(Sample{Timestamp: 950, MyHashrate: 2})
	if err := src.Save(context.Background(), store); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	dst := NewSeries(time.Hour)
	dst.SetClock(clock)
	dst.Load(context.Background(), store)
	if dst.Len() != 2 {
		t.Errorf("Len after load = %d, want 2", dst.Len())
	}
}

func TestSeriesLoadPrunes(t *testing.T) {
	blob, _ := Encode([]Sample{{Timestamp: 10}, {Timestamp: 990}})
	store := &memStore{blob: blob}

	s := NewSeries(time.Minute)
	s.SetClock(fixedClock(1000))
	s.Load(context.Background(), store)

	if s.Len() != 1 {
		t.Errorf("Len = %d, want retention-pruned 1", s.Len())
	}
}

func TestSeriesLoadTolerant(t *testing.T) {
	tests := []struct {
		name  string
		store Store
	}{
		{"nil store", nil},
		{"absent blob", &memStore{}},
		{"corrupt blob", &memStore{blob: []byte("not json")}},
		{"store error", &memStore{loadErr: errors.New("disk gone")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSeries(time.Hour)
			s.SetClock(fixedClock(1000))
			if tt.store != nil {
				s.Append(Sample{Timestamp: 999})
			}

			s.Load(context.Background(), tt.store)

			if tt.store != nil && s.Len() != 0 {
				t.Errorf("Len = %d, want reset to empty", s.Len())
			}
		})
	}
}

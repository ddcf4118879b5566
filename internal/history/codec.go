package history

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/zeebo/blake3"

	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

// ErrChecksum is returned when a stored blob does not match its checksum
var ErrChecksum = errors.New("history: checksum mismatch")

// Store persists the serialized series. Load returns a nil blob when
// nothing has been stored yet.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, blob []byte) error
}

// Log is the parallel-array layout of the persisted history
type Log struct {
	Timestamps []int64   `json:"timestamps"`
	MyHash     []float64 `json:"myHash"`
	PoolHash   []float64 `json:"poolHash"`
	NetHash    []float64 `json:"netHash"`
	Price      []float64 `json:"price"`
}

type envelope struct {
	Version  int             `json:"version"`
	Checksum string          `json:"checksum"`
	Log      json.RawMessage `json:"log"`
}

const blobVersion = 1

// ToLog converts samples into the parallel-array layout
func ToLog(samples []Sample) Log {
	v := newView(samples)
	return Log{
		Timestamps: v.Timestamps,
		MyHash:     v.MyHashrate,
		PoolHash:   v.PoolHashrate,
		NetHash:    v.NetworkHashrate,
		Price:      v.Price,
	}
}

// Samples converts the parallel arrays back to samples. Arrays of unequal
// length are cut to the shortest timestamp-aligned prefix; missing price
// entries read as zero.
func (l Log) Samples() []Sample {
	n := len(l.Timestamps)
	n = min(n, len(l.MyHash), len(l.PoolHash), len(l.NetHash))

	out := make([]Sample, n)
	for i := 0; i < n; i++ {
		out[i] = Sample{
			Timestamp:       l.Timestamps[i],
			MyHashrate:      l.MyHash[i],
			PoolHashrate:    l.PoolHash[i],
			NetworkHashrate: l.NetHash[i],
		}
		if i < len(l.Price) {
			out[i].Price = l.Price[i]
		}
	}
	return out
}

// Encode serializes samples into a checksummed blob
func Encode(samples []Sample) ([]byte, error) {
	body, err := sonic.Marshal(ToLog(samples))
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}

	return sonic.Marshal(envelope{
		Version:  blobVersion,
		Checksum: checksum(body),
		Log:      body,
	})
}

// Decode parses a blob produced by Encode. A bare parallel-array log
// without an envelope is accepted as well.
func Decode(blob []byte) ([]Sample, error) {
	var env envelope
	if err := sonic.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}

	if len(env.Log) == 0 {
		var bare Log
		if err := sonic.Unmarshal(blob, &bare); err != nil {
			return nil, fmt.Errorf("unmarshal history: %w", err)
		}
		return bare.Samples(), nil
	}

	if env.Checksum != checksum(env.Log) {
		return nil, ErrChecksum
	}

	var l Log
	if err := sonic.Unmarshal(env.Log, &l); err != nil {
		return nil, fmt.Errorf("unmarshal history log: %w", err)
	}
	return l.Samples(), nil
}

func checksum(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Load restores the series from store. Absent or unreadable state leaves
// the series empty; it never fails the caller.
func (s *Series) Load(ctx context.Context, store Store) {
	if store == nil {
		return
	}

	blob, err := store.Load(ctx)
	if err != nil {
		util.Warnf("History load failed, starting empty: %v", err)
		s.Reset()
		return
	}
	if len(blob) == 0 {
		s.Reset()
		return
	}

	samples, err := Decode(blob)
	if err != nil {
		util.Warnf("Stored history is corrupt, starting empty: %v", err)
		s.Reset()
		return
	}

	s.Replace(samples)
	util.Infof("Loaded %d history samples", s.Len())
}

// Save writes the series to store
func (s *Series) Save(ctx context.Context, store Store) error {
	if store == nil {
		return nil
	}

	blob, err := Encode(s.Samples())
	if err != nil {
		return err
	}
	return store.Save(ctx, blob)
}

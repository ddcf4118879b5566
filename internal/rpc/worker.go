package rpc

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrMalformedWorker is returned for a worker entry that cannot be parsed
var ErrMalformedWorker = errors.New("malformed worker entry")

// Worker is one miner connected to the local stratum
type Worker struct {
	Addr        string  `json:"addr"`
	IP          string  `json:"ip"`
	Hashrate    float64 `json:"hashrate"`
	TotalHashes uint64  `json:"total_hashes"`
	Port        int     `json:"port"`
	Name        string  `json:"name"`
}

// DisplayName returns the worker name, or "Miner @ <ip>" when the miner
// did not set one
func (w Worker) DisplayName() string {
	name := strings.TrimSpace(w.Name)
	if name == "" || name == "x" {
		return "Miner @ " + w.IP
	}
	return name
}

// ParseWorker parses "ip:port,hashrate,totalHashes,port,name". Only the
// address is required; missing numeric fields read as zero.
func ParseWorker(s string) (Worker, error) {
	parts := strings.Split(s, ",")
	addr := strings.TrimSpace(parts[0])
	if addr == "" {
		return Worker{}, fmt.Errorf("%w: empty address", ErrMalformedWorker)
	}

	w := Worker{Addr: addr, IP: addr}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		w.IP = host
	}

	field := func(i int) string {
		if i < len(parts) {
			return strings.TrimSpace(parts[i])
		}
		return ""
	}

	if v := field(1); v != "" {
		hr, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Worker{}, fmt.Errorf("%w: hashrate %q", ErrMalformedWorker, v)
		}
		w.Hashrate = hr
	}
	if v := field(2); v != "" {
		total, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Worker{}, fmt.Errorf("%w: total hashes %q", ErrMalformedWorker, v)
		}
		w.TotalHashes = total
	}
	if v := field(3); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Worker{}, fmt.Errorf("%w: port %q", ErrMalformedWorker, v)
		}
		w.Port = port
	}
	w.Name = field(4)

	return w, nil
}

package rpc

import (
	"errors"
	"testing"
)

func TestParseWorker(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     Worker
		wantName string
		wantErr  bool
	}{
		{
			name:     "full entry",
			input:    "192.168.1.10:50123,6012,987654321,3333,rig-a",
			want:     Worker{Addr: "192.168.1.10:50123", IP: "192.168.1.10", Hashrate: 6012, TotalHashes: 987654321, Port: 3333, Name: "rig-a"},
			wantName: "rig-a",
		},
		{
			name:     "x name",
			input:    "10.0.0.5:40000,100,5,3333,x",
			want:     Worker{Addr: "10.0.0.5:40000", IP: "10.0.0.5", Hashrate: 100, TotalHashes: 5, Port: 3333, Name: "x"},
			wantName: "Miner @ 10.0.0.5",
		},
		{
			name:     "missing name",
			input:    "10.0.0.6:40000,100,5,3333",
			want:     Worker{Addr: "10.0.0.6:40000", IP: "10.0.0.6", Hashrate: 100, TotalHashes: 5, Port: 3333},
			wantName: "Miner @ 10.0.0.6",
		},
		{
			name:     "ipv6",
			input:    "[::1]:40000,1,1,3333,local",
			want:     Worker{Addr: "[::1]:40000", IP: "::1", Hashrate: 1, TotalHashes: 1, Port: 3333, Name: "local"},
			wantName: "local",
		},
		{
			name:     "address only",
			input:    "10.0.0.7",
			want:     Worker{Addr: "10.0.0.7", IP: "10.0.0.7"},
			wantName: "Miner @ 10.0.0.7",
		},
		{name: "empty", input: "", wantErr: true},
		{name: "bad hashrate", input: "10.0.0.8:1,fast,1,1,a", wantErr: true},
		{name: "bad port", input: "10.0.0.8:1,1,1,http,a", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWorker(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedWorker) {
					t.Errorf("ParseWorker() error = %v, want ErrMalformedWorker", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseWorker() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseWorker() = %+v, want %+v", got, tt.want)
			}
			if got.DisplayName() != tt.wantName {
				t.Errorf("DisplayName() = %q, want %q", got.DisplayName(), tt.wantName)
			}
		})
	}
}

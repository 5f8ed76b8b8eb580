// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"lid/internal/pipeline"
	"lid/internal/transport"
)

/*
UDP Packet Structure (BigEndian)

+------------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description              |
|-------------------|----------------|--------------|--------------------------|
| Sequence Number   | uint32         | 4            | Result sequence number   |
| Timestamp         | int64          | 8            | Nanoseconds since epoch  |
| Score Count       | uint16         | 2            | Number of entries (N)    |
| Entries           | N * entry      | N * 6        | Ranked, highest first    |
+------------------------------------------------------------------------------+

Each entry is a uint16 label index (position in the model's label list)
followed by a float32 score.
*/

const (
	headerSize = 4 + 8 + 2
	entrySize  = 2 + 4
)

// Entry is one label score in a packet.
type Entry struct {
	Label uint16
	Score float32
}

// Packet is a decoded result packet.
type Packet struct {
	Seq       uint32
	Timestamp int64
	Entries   []Entry
}

// ResultPublisher packs each successful result into the binary format above
// and sends it with a UDPSender. Failed inferences are not published.
type ResultPublisher struct {
	sender *UDPSender
	index  map[string]uint16

	mu     sync.Mutex
	packet bytes.Buffer // Reused between sends.
}

// NewResultPublisher creates a publisher for results over labels, given in
// model output order.
func NewResultPublisher(sender *UDPSender, labels []string) (*ResultPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDP sender cannot be nil")
	}
	if len(labels) > math.MaxUint16 {
		return nil, fmt.Errorf("too many labels for a packet: %d", len(labels))
	}
	index := make(map[string]uint16, len(labels))
	for i, l := range labels {
		index[l] = uint16(i)
	}
	logger.Infof("publishing results for %d labels", len(labels))
	return &ResultPublisher{sender: sender, index: index}, nil
}

// Send publishes a pipeline.Result. Other values are rejected.
func (p *ResultPublisher) Send(data any) error {
	res, ok := data.(pipeline.Result)
	if !ok {
		return fmt.Errorf("cannot publish %T", data)
	}
	if res.Err != nil {
		return nil
	}

	entries := make([]Entry, 0, len(res.Ranked))
	for _, s := range res.Ranked {
		idx, ok := p.index[s.Label]
		if !ok {
			return fmt.Errorf("unknown label %q", s.Label)
		}
		entries = append(entries, Entry{Label: idx, Score: s.Score})
	}
	pkt := Packet{Seq: uint32(res.Seq), Timestamp: res.At.UnixNano(), Entries: entries}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.packet.Reset()
	if err := pkt.encode(&p.packet); err != nil {
		return fmt.Errorf("error packing result %d: %w", res.Seq, err)
	}
	if err := p.sender.Send(p.packet.Bytes()); err != nil {
		return err
	}
	logger.Debugf("sent packet %d (%d bytes)", pkt.Seq, p.packet.Len())
	return nil
}

// Close closes the underlying sender.
func (p *ResultPublisher) Close() error {
	return p.sender.Close()
}

// Encode returns the wire form of p.
func (p Packet) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(headerSize + entrySize*len(p.Entries))
	if err := p.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p Packet) encode(buf *bytes.Buffer) error {
	if len(p.Entries) > math.MaxUint16 {
		return fmt.Errorf("too many entries: %d", len(p.Entries))
	}
	err := binary.Write(buf, binary.BigEndian, p.Seq)
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, p.Timestamp)
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, uint16(len(p.Entries)))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, p.Entries)
	}
	return err
}

// DecodePacket parses a packet produced by ResultPublisher.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < headerSize {
		return Packet{}, fmt.Errorf("packet too short: %d bytes", len(b))
	}
	p := Packet{
		Seq:       binary.BigEndian.Uint32(b[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:12])),
	}
	n := int(binary.BigEndian.Uint16(b[12:14]))
	if len(b) != headerSize+n*entrySize {
		return Packet{}, fmt.Errorf("packet has %d bytes for %d entries", len(b), n)
	}
	p.Entries = make([]Entry, n)
	for i := range p.Entries {
		off := headerSize + i*entrySize
		p.Entries[i] = Entry{
			Label: binary.BigEndian.Uint16(b[off : off+2]),
			Score: math.Float32frombits(binary.BigEndian.Uint32(b[off+2 : off+6])),
		}
	}
	return p, nil
}

// Time returns the packet timestamp.
func (p Packet) Time() time.Time {
	return time.Unix(0, p.Timestamp)
}

var _ transport.Transport = (*ResultPublisher)(nil)

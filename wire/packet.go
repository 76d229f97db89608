package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// PacketKind identifies a link packet
type PacketKind uint8

const (
	KindHello         PacketKind = 1 // central -> peripheral, first packet on a link
	KindHelloAck      PacketKind = 2 // peripheral -> central
	KindWriteRequest  PacketKind = 3
	KindWriteResponse PacketKind = 4
)

func (k PacketKind) String() string {
	switch k {
	case KindHello:
		return "hello"
	case KindHelloAck:
		return "hello-ack"
	case KindWriteRequest:
		return "write-req"
	case KindWriteResponse:
		return "write-rsp"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Packet is one link-layer record. Which fields are set depends on Kind.
type Packet struct {
	Kind    PacketKind
	ID      uint64 // write request id, echoed in the response
	Device  string // sender id (hello, hello-ack)
	Name    string // sender local name (hello, hello-ack)
	Service string
	Char    string
	Value   []byte
	Code    uint8 // ATT error code of a write response
}

// Field numbers of the packet record
const (
	fieldKind    protowire.Number = 1
	fieldID      protowire.Number = 2
	fieldDevice  protowire.Number = 3
	fieldName    protowire.Number = 4
	fieldService protowire.Number = 5
	fieldChar    protowire.Number = 6
	fieldValue   protowire.Number = 7
	fieldCode    protowire.Number = 8
)

// MaxPacketLen is the largest record that fits the 2-byte length prefix
const MaxPacketLen = 0xFFFF

var ErrPacketTooLong = errors.New("wire: packet too long")

// Marshal encodes the packet in protobuf wire format. Empty fields are omitted.
func (p *Packet) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Kind))
	if p.ID != 0 {
		b = protowire.AppendTag(b, fieldID, protowire.VarintType)
		b = protowire.AppendVarint(b, p.ID)
	}
	b = appendString(b, fieldDevice, p.Device)
	b = appendString(b, fieldName, p.Name)
	b = appendString(b, fieldService, p.Service)
	b = appendString(b, fieldChar, p.Char)
	if len(p.Value) > 0 {
		b = protowire.AppendTag(b, fieldValue, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Value)
	}
	if p.Code != 0 {
		b = protowire.AppendTag(b, fieldCode, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.Code))
	}
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// UnmarshalPacket decodes a record produced by Marshal. Unknown fields are skipped.
func UnmarshalPacket(b []byte) (*Packet, error) {
	p := &Packet{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("wire: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType && (num == fieldKind || num == fieldID || num == fieldCode):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: bad field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldKind:
				p.Kind = PacketKind(v)
			case fieldID:
				p.ID = v
			case fieldCode:
				p.Code = uint8(v)
			}

		case typ == protowire.BytesType && num >= fieldDevice && num <= fieldValue:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: bad field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldDevice:
				p.Device = string(v)
			case fieldName:
				p.Name = string(v)
			case fieldService:
				p.Service = string(v)
			case fieldChar:
				p.Char = string(v)
			case fieldValue:
				p.Value = append([]byte(nil), v...)
			}

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("wire: bad field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if p.Kind == 0 {
		return nil, errors.New("wire: packet without kind")
	}
	return p, nil
}

// WritePacket frames the packet with a 2-byte little-endian length prefix
func WritePacket(w io.Writer, p *Packet) error {
	body := p.Marshal()
	if len(body) > MaxPacketLen {
		return fmt.Errorf("%w: %d bytes", ErrPacketTooLong, len(body))
	}
	buf := make([]byte, 2+len(body))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(body)))
	copy(buf[2:], body)
	_, err := w.Write(buf)
	return err
}

// ReadPacket reads one framed packet
func ReadPacket(r io.Reader) (*Packet, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return UnmarshalPacket(body)
}

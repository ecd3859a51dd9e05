package a2s

import (
	"bytes"
	"encoding/binary"
	"errors"
)

var errShortPacket = errors.New("short packet")

// reader walks a little-endian A2S payload. The first failure sticks.
type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if len(r.b)-r.off < n {
		r.err = errShortPacket
		return false
	}
	return true
}

func (r *reader) u8() byte {
	if !r.need(1) {
		return 0
	}
	v := r.b[r.off]
	r.off++
	return v
}

func (r *reader) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v
}

func (r *reader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v
}

func (r *reader) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.b[r.off:])
	r.off += 8
	return v
}

// cstring reads a NUL terminated string.
func (r *reader) cstring() string {
	if r.err != nil {
		return ""
	}
	i := bytes.IndexByte(r.b[r.off:], 0)
	if i < 0 {
		r.err = errors.New("unterminated string")
		return ""
	}
	s := string(r.b[r.off : r.off+i])
	r.off += i + 1
	return s
}

func (r *reader) remaining() int { return len(r.b) - r.off }

// decodeInfo parses the payload after the 0xFFFFFFFF header and 0x49 type byte.
func decodeInfo(payload []byte) (ServerInfo, error) {
	r := &reader{b: payload}
	var info ServerInfo
	info.Protocol = r.u8()
	info.Name = r.cstring()
	info.Map = r.cstring()
	info.Folder = r.cstring()
	info.Game = r.cstring()
	info.AppID = r.u16()
	info.Players = r.u8()
	info.MaxPlayers = r.u8()
	info.Bots = r.u8()
	info.ServerType = r.u8()
	info.Environment = r.u8()
	info.Visibility = r.u8()
	info.VAC = r.u8()
	info.Version = r.cstring()
	if r.err != nil {
		return ServerInfo{}, r.err
	}
	if r.remaining() == 0 {
		return info, nil
	}

	info.EDF = r.u8()
	if info.EDF&edfPort != 0 {
		info.GamePort = r.u16()
	}
	if info.EDF&edfSteamID != 0 {
		info.SteamID = r.u64()
	}
	if info.EDF&edfSourceTV != 0 {
		info.SourceTV.Port = r.u16()
		info.SourceTV.Name = r.cstring()
	}
	if info.EDF&edfKeywords != 0 {
		kw := r.cstring()
		if r.err == nil {
			info.Keywords = &kw
		}
	}
	if info.EDF&edfGameID != 0 {
		info.GameID = r.u64()
	}
	if r.err != nil {
		return ServerInfo{}, r.err
	}
	return info, nil
}

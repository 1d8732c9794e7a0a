// Package wire implements the binary record encoding for the two
// message kinds carried on the bus: length-prefixed strings and
// big-endian fixed-width fields, built directly on encoding/binary.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// CmdInfo is one command's observed state within an Info record.
type CmdInfo struct {
	Name          string
	Nickname      string
	Group         string
	SheriffID     int32
	PID           int32
	ActualRunID   int32
	ExitCode      int32
	CPUUsage      float32
	MemVsizeBytes uint64
	MemRSSBytes   uint64
	AutoRespawn   bool
}

// Info is the PMD_INFO payload: a deputy's full report of its host and
// the commands it supervises.
type Info struct {
	UTime        uint64
	Host         string
	CPULoad      float32
	PhysMemTotal uint64
	PhysMemFree  uint64
	Cmds         []CmdInfo
	VarNames     []string
	VarVals      []string
}

// SheriffCmd is one command's desired state within an Orders record.
type SheriffCmd struct {
	Name         string
	Nickname     string
	SheriffID    int32
	DesiredRunID int32
	ForceQuit    bool
	Group        string
	AutoRespawn  bool
}

// Orders is the PMD_ORDERS payload: the sheriff's (or a peer sheriff's,
// in observer mode) desired state broadcast to/observed from a deputy.
type Orders struct {
	UTime       uint64
	Host        string
	SheriffName string
	Cmds        []SheriffCmd
	VarNames    []string
	VarVals     []string
}

// writeString encodes a string as a uint32 byte length followed by the
// raw bytes.
func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.BigEndian, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeStrings(buf *bytes.Buffer, ss []string) {
	binary.Write(buf, binary.BigEndian, uint32(len(ss)))
	for _, s := range ss {
		writeString(buf, s)
	}
}

func readStrings(r *bytes.Reader) ([]string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// EncodeInfo produces the opaque byte payload for a PMD_INFO message.
func EncodeInfo(info Info) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, info.UTime)
	writeString(&buf, info.Host)
	binary.Write(&buf, binary.BigEndian, info.CPULoad)
	binary.Write(&buf, binary.BigEndian, info.PhysMemTotal)
	binary.Write(&buf, binary.BigEndian, info.PhysMemFree)
	binary.Write(&buf, binary.BigEndian, uint32(len(info.Cmds)))
	for _, c := range info.Cmds {
		writeString(&buf, c.Name)
		writeString(&buf, c.Nickname)
		writeString(&buf, c.Group)
		binary.Write(&buf, binary.BigEndian, c.SheriffID)
		binary.Write(&buf, binary.BigEndian, c.PID)
		binary.Write(&buf, binary.BigEndian, c.ActualRunID)
		binary.Write(&buf, binary.BigEndian, c.ExitCode)
		binary.Write(&buf, binary.BigEndian, c.CPUUsage)
		binary.Write(&buf, binary.BigEndian, c.MemVsizeBytes)
		binary.Write(&buf, binary.BigEndian, c.MemRSSBytes)
		binary.Write(&buf, binary.BigEndian, c.AutoRespawn)
	}
	writeStrings(&buf, info.VarNames)
	writeStrings(&buf, info.VarVals)
	return buf.Bytes()
}

// DecodeInfo parses a PMD_INFO payload. A malformed payload returns an
// error; callers log and drop rather than propagate.
func DecodeInfo(data []byte) (Info, error) {
	r := bytes.NewReader(data)
	var info Info
	var err error

	if err = binary.Read(r, binary.BigEndian, &info.UTime); err != nil {
		return Info{}, fmt.Errorf("wire: decode info utime: %w", err)
	}
	if info.Host, err = readString(r); err != nil {
		return Info{}, fmt.Errorf("wire: decode info host: %w", err)
	}
	if err = binary.Read(r, binary.BigEndian, &info.CPULoad); err != nil {
		return Info{}, fmt.Errorf("wire: decode info cpu_load: %w", err)
	}
	if err = binary.Read(r, binary.BigEndian, &info.PhysMemTotal); err != nil {
		return Info{}, fmt.Errorf("wire: decode info phys_mem_total: %w", err)
	}
	if err = binary.Read(r, binary.BigEndian, &info.PhysMemFree); err != nil {
		return Info{}, fmt.Errorf("wire: decode info phys_mem_free: %w", err)
	}
	var ncmds uint32
	if err = binary.Read(r, binary.BigEndian, &ncmds); err != nil {
		return Info{}, fmt.Errorf("wire: decode info ncmds: %w", err)
	}
	info.Cmds = make([]CmdInfo, ncmds)
	for i := range info.Cmds {
		c := &info.Cmds[i]
		if c.Name, err = readString(r); err != nil {
			return Info{}, fmt.Errorf("wire: decode cmd name: %w", err)
		}
		if c.Nickname, err = readString(r); err != nil {
			return Info{}, fmt.Errorf("wire: decode cmd nickname: %w", err)
		}
		if c.Group, err = readString(r); err != nil {
			return Info{}, fmt.Errorf("wire: decode cmd group: %w", err)
		}
		for _, dst := range []any{&c.SheriffID, &c.PID, &c.ActualRunID, &c.ExitCode, &c.CPUUsage, &c.MemVsizeBytes, &c.MemRSSBytes, &c.AutoRespawn} {
			if err = binary.Read(r, binary.BigEndian, dst); err != nil {
				return Info{}, fmt.Errorf("wire: decode cmd field: %w", err)
			}
		}
	}
	if info.VarNames, err = readStrings(r); err != nil {
		return Info{}, fmt.Errorf("wire: decode info varnames: %w", err)
	}
	if info.VarVals, err = readStrings(r); err != nil {
		return Info{}, fmt.Errorf("wire: decode info varvals: %w", err)
	}
	return info, nil
}

// EncodeOrders produces the opaque byte payload for a PMD_ORDERS message.
func EncodeOrders(o Orders) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, o.UTime)
	writeString(&buf, o.Host)
	writeString(&buf, o.SheriffName)
	binary.Write(&buf, binary.BigEndian, uint32(len(o.Cmds)))
	for _, c := range o.Cmds {
		writeString(&buf, c.Name)
		writeString(&buf, c.Nickname)
		binary.Write(&buf, binary.BigEndian, c.SheriffID)
		binary.Write(&buf, binary.BigEndian, c.DesiredRunID)
		binary.Write(&buf, binary.BigEndian, c.ForceQuit)
		writeString(&buf, c.Group)
		binary.Write(&buf, binary.BigEndian, c.AutoRespawn)
	}
	writeStrings(&buf, o.VarNames)
	writeStrings(&buf, o.VarVals)
	return buf.Bytes()
}

// DecodeOrders parses a PMD_ORDERS payload.
func DecodeOrders(data []byte) (Orders, error) {
	r := bytes.NewReader(data)
	var o Orders
	var err error

	if err = binary.Read(r, binary.BigEndian, &o.UTime); err != nil {
		return Orders{}, fmt.Errorf("wire: decode orders utime: %w", err)
	}
	if o.Host, err = readString(r); err != nil {
		return Orders{}, fmt.Errorf("wire: decode orders host: %w", err)
	}
	if o.SheriffName, err = readString(r); err != nil {
		return Orders{}, fmt.Errorf("wire: decode orders sheriff_name: %w", err)
	}
	var ncmds uint32
	if err = binary.Read(r, binary.BigEndian, &ncmds); err != nil {
		return Orders{}, fmt.Errorf("wire: decode orders ncmds: %w", err)
	}
	o.Cmds = make([]SheriffCmd, ncmds)
	for i := range o.Cmds {
		c := &o.Cmds[i]
		if c.Name, err = readString(r); err != nil {
			return Orders{}, fmt.Errorf("wire: decode sheriff_cmd name: %w", err)
		}
		if c.Nickname, err = readString(r); err != nil {
			return Orders{}, fmt.Errorf("wire: decode sheriff_cmd nickname: %w", err)
		}
		if err = binary.Read(r, binary.BigEndian, &c.SheriffID); err != nil {
			return Orders{}, fmt.Errorf("wire: decode sheriff_cmd sheriff_id: %w", err)
		}
		if err = binary.Read(r, binary.BigEndian, &c.DesiredRunID); err != nil {
			return Orders{}, fmt.Errorf("wire: decode sheriff_cmd desired_runid: %w", err)
		}
		if err = binary.Read(r, binary.BigEndian, &c.ForceQuit); err != nil {
			return Orders{}, fmt.Errorf("wire: decode sheriff_cmd force_quit: %w", err)
		}
		if c.Group, err = readString(r); err != nil {
			return Orders{}, fmt.Errorf("wire: decode sheriff_cmd group: %w", err)
		}
		if err = binary.Read(r, binary.BigEndian, &c.AutoRespawn); err != nil {
			return Orders{}, fmt.Errorf("wire: decode sheriff_cmd auto_respawn: %w", err)
		}
	}
	if o.VarNames, err = readStrings(r); err != nil {
		return Orders{}, fmt.Errorf("wire: decode orders varnames: %w", err)
	}
	if o.VarVals, err = readStrings(r); err != nil {
		return Orders{}, fmt.Errorf("wire: decode orders varvals: %w", err)
	}
	return o, nil
}

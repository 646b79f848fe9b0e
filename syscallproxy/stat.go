package syscallproxy

import (
	"encoding/binary"
	"io/fs"
)

// StatSize is the size of the stat structure written to the target.
const StatSize = 128

// File type bits of the target st_mode.
const (
	modeFIFO    = 0o010000
	modeChar    = 0o020000
	modeDir     = 0o040000
	modeBlock   = 0o060000
	modeRegular = 0o100000
	modeSymlink = 0o120000
	modeSocket  = 0o140000

	modeSetuid = 0o4000
	modeSetgid = 0o2000
	modeSticky = 0o1000
)

// A targetStat is the stat structure of the target.
type targetStat struct {
	Dev       uint64
	Ino       uint64
	Mode      uint32
	Nlink     uint32
	UID       uint32
	GID       uint32
	Rdev      uint64
	Size      int64
	Blksize   uint32
	Blocks    uint64
	Atime     int64
	AtimeNsec int64
	Mtime     int64
	MtimeNsec int64
	Ctime     int64
	CtimeNsec int64
}

func statOf(info fs.FileInfo) targetStat {
	st := targetStat{
		Mode:      targetMode(info.Mode()),
		Nlink:     1,
		Size:      info.Size(),
		Blksize:   4096,
		Mtime:     info.ModTime().Unix(),
		MtimeNsec: int64(info.ModTime().Nanosecond()),
	}
	st.Blocks = uint64(st.Size+511) / 512
	st.Atime, st.AtimeNsec = st.Mtime, st.MtimeNsec
	st.Ctime, st.CtimeNsec = st.Mtime, st.MtimeNsec

	fillFromHost(&st, info)

	return st
}

// consoleStat describes the standard streams.
func consoleStat() targetStat {
	return targetStat{
		Mode:    modeChar | 0o620,
		Nlink:   1,
		Blksize: 1024,
	}
}

func targetMode(m fs.FileMode) uint32 {
	mode := uint32(m.Perm())

	switch {
	case m.IsDir():
		mode |= modeDir
	case m&fs.ModeSymlink != 0:
		mode |= modeSymlink
	case m&fs.ModeNamedPipe != 0:
		mode |= modeFIFO
	case m&fs.ModeSocket != 0:
		mode |= modeSocket
	case m&fs.ModeCharDevice != 0:
		mode |= modeChar
	case m&fs.ModeDevice != 0:
		mode |= modeBlock
	default:
		mode |= modeRegular
	}

	if m&fs.ModeSetuid != 0 {
		mode |= modeSetuid
	}

	if m&fs.ModeSetgid != 0 {
		mode |= modeSetgid
	}

	if m&fs.ModeSticky != 0 {
		mode |= modeSticky
	}

	return mode
}

// encode lays the structure out the way the target reads it.
func (st targetStat) encode(order binary.ByteOrder) []byte {
	buf := make([]byte, StatSize)

	order.PutUint64(buf[0:], st.Dev)
	order.PutUint64(buf[8:], st.Ino)
	order.PutUint32(buf[16:], st.Mode)
	order.PutUint32(buf[20:], st.Nlink)
	order.PutUint32(buf[24:], st.UID)
	order.PutUint32(buf[28:], st.GID)
	order.PutUint64(buf[32:], st.Rdev)
	// 40: padding
	order.PutUint64(buf[48:], uint64(st.Size))
	order.PutUint32(buf[56:], st.Blksize)
	// 60: padding
	order.PutUint64(buf[64:], st.Blocks)
	order.PutUint64(buf[72:], uint64(st.Atime))
	order.PutUint64(buf[80:], uint64(st.AtimeNsec))
	order.PutUint64(buf[88:], uint64(st.Mtime))
	order.PutUint64(buf[96:], uint64(st.MtimeNsec))
	order.PutUint64(buf[104:], uint64(st.Ctime))
	order.PutUint64(buf[112:], uint64(st.CtimeNsec))
	// 120: unused

	return buf
}

package syscallproxy

import (
	"io/fs"
	"syscall"
)

// fillFromHost copies the fields that only the host stat structure has.
func fillFromHost(st *targetStat, info fs.FileInfo) {
	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}

	st.Dev = uint64(sys.Dev)
	st.Ino = uint64(sys.Ino)
	st.Mode = uint32(sys.Mode)
	st.Nlink = uint32(sys.Nlink)
	st.UID = sys.Uid
	st.GID = sys.Gid
	st.Rdev = uint64(sys.Rdev)
	st.Blksize = uint32(sys.Blksize)
	st.Blocks = uint64(sys.Blocks)
	st.Atime, st.AtimeNsec = int64(sys.Atim.Sec), int64(sys.Atim.Nsec)
	st.Ctime, st.CtimeNsec = int64(sys.Ctim.Sec), int64(sys.Ctim.Nsec)
}

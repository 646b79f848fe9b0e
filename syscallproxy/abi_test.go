package syscallproxy

import (
	"encoding/binary"
	"io/fs"
	"testing/fstest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ABI", func() {
	DescribeTable("should keep the riscv-pk numbers",
		func(n uint64, expected Call) {
			c, ok := RiscvPK.Lookup(n)

			Expect(ok).To(BeTrue())
			Expect(c).To(Equal(expected))
		},
		Entry("exit", uint64(93), CallExit),
		Entry("exit_group", uint64(94), CallExitGroup),
		Entry("openat", uint64(56), CallOpenAt),
		Entry("read", uint64(63), CallRead),
		Entry("write", uint64(64), CallWrite),
		Entry("fstat", uint64(80), CallFstat),
		Entry("open", uint64(1024), CallOpen),
		Entry("lstat", uint64(1039), CallLstat),
		Entry("getmainvars", uint64(2011), CallGetMainVars),
	)

	It("should find ABIs by name", func() {
		abi, err := ABIByName("riscv-pk")

		Expect(err).NotTo(HaveOccurred())
		Expect(abi.Name).To(Equal("riscv-pk"))
		Expect(ABINames()).To(Equal([]string{"riscv-pk"}))
	})

	It("should reject unknown ABIs", func() {
		_, err := ABIByName("newlib")

		Expect(err).To(HaveOccurred())
	})

	It("should name calls", func() {
		Expect(CallGetcwd.String()).To(Equal("getcwd"))
		Expect(Call(1000).String()).To(Equal("call(1000)"))
	})
})

var _ = Describe("Request", func() {
	It("should keep 64-bit arguments", func() {
		r := Request{Args: [NumArgs]uint64{0xffffffffffffff9c}, wordSize: 8}

		Expect(r.Int(0)).To(Equal(int64(-100)))
		Expect(r.Uint(0)).To(Equal(uint64(0xffffffffffffff9c)))
	})

	It("should sign-extend 32-bit arguments", func() {
		r := Request{
			Args:     [NumArgs]uint64{narrow(0xabcdffffff9c, 4)},
			wordSize: 4,
		}

		Expect(r.Uint(0)).To(Equal(uint64(0xffffff9c)))
		Expect(r.Int(0)).To(Equal(int64(-100)))
	})

	It("should widen results", func() {
		Expect(widen(-2, 4)).To(Equal(uint64(0xfffffffffffffffe)))
		Expect(widen(-2, 8)).To(Equal(uint64(0xfffffffffffffffe)))
		Expect(widen(5, 4)).To(Equal(uint64(5)))
	})
})

var _ = Describe("Stat", func() {
	It("should lay out the target structure", func() {
		mtime := time.Unix(1000, 5)
		fsys := fstest.MapFS{
			"f": {Data: []byte("12345"), Mode: 0o640, ModTime: mtime},
		}
		info, err := fs.Stat(fsys, "f")
		Expect(err).NotTo(HaveOccurred())

		buf := statOf(info).encode(binary.LittleEndian)

		Expect(buf).To(HaveLen(StatSize))
		Expect(binary.LittleEndian.Uint32(buf[16:])).
			To(Equal(uint32(modeRegular | 0o640)))
		Expect(binary.LittleEndian.Uint64(buf[48:])).To(Equal(uint64(5)))
		Expect(binary.LittleEndian.Uint64(buf[64:])).To(Equal(uint64(1)))
		Expect(binary.LittleEndian.Uint64(buf[88:])).To(Equal(uint64(1000)))
		Expect(binary.LittleEndian.Uint64(buf[96:])).To(Equal(uint64(5)))
	})

	It("should map directory modes", func() {
		Expect(targetMode(fs.ModeDir | 0o755)).To(Equal(uint32(modeDir | 0o755)))
		Expect(targetMode(fs.ModeSymlink | 0o777)).
			To(Equal(uint32(modeSymlink | 0o777)))
	})
})

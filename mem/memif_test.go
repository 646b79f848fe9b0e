package mem

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Memif", func() {
	var (
		space *AddressSpace
		memif *Memif
	)

	BeforeEach(func() {
		space = NewAddressSpace()
		_, err := space.AddRegion(0x1000, 0x2000)
		Expect(err).NotTo(HaveOccurred())

		transport, err := NewAddressSpaceTransport(space, DefaultChunkGeometry)
		Expect(err).NotTo(HaveOccurred())

		m, err := NewChunkedMemory(transport)
		Expect(err).NotTo(HaveOccurred())

		memif = NewMemif(m, nil)
	})

	It("should use little endian by default", func() {
		Expect(memif.WriteUint32(0x1004, 0x11223344)).To(Succeed())

		raw := make([]byte, 4)
		Expect(space.Read(0x1004, raw)).To(Succeed())
		Expect(raw).To(Equal([]byte{0x44, 0x33, 0x22, 0x11}))

		v, err := memif.ReadUint32(0x1004)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint32(0x11223344)))
	})

	It("should honour big endian targets", func() {
		memif = NewMemif(memif.ChunkedMemory, binary.BigEndian)

		Expect(memif.WriteUint16(0x1002, 0xABCD)).To(Succeed())

		raw := make([]byte, 2)
		Expect(space.Read(0x1002, raw)).To(Succeed())
		Expect(raw).To(Equal([]byte{0xAB, 0xCD}))
	})

	It("should narrow words to the requested size", func() {
		Expect(memif.WriteWord(0x1010, 4, 0x1_0000_0002)).To(Succeed())

		v, err := memif.ReadWord(0x1010, 8)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint64(2)))
	})

	It("should read C strings that cross a page boundary", func() {
		Expect(memif.Write(0x1ffd, []byte("hello\x00"))).To(Succeed())

		s, err := memif.ReadCString(0x1ffd, 64)
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(Equal("hello"))
	})

	It("should not read past the region for a string near its end", func() {
		Expect(memif.Write(0x2ffa, []byte("end\x00"))).To(Succeed())

		s, err := memif.ReadCString(0x2ffa, 4096)
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(Equal("end"))
	})

	It("should fail on strings longer than the limit", func() {
		Expect(memif.Write(0x1100, []byte("abcdefgh"))).To(Succeed())

		_, err := memif.ReadCString(0x1100, 4)
		Expect(err).To(HaveOccurred())
	})
})

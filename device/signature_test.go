package device

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/htif/mem"
)

var _ = Describe("Signature", func() {
	var (
		memif *mem.Memif
		dev   *SignatureDevice
	)

	BeforeEach(func() {
		memif, _ = newTestMemif()
		dev = NewSignatureDevice("signature", memif)
	})

	It("should take the range from target memory", func() {
		Expect(memif.WriteUint64(0x80000040, 0x80001000)).To(Succeed())
		Expect(memif.WriteUint64(0x80000048, 0x80001020)).To(Succeed())

		rsp, err := dev.Handle(Command{Cmd: SignatureCmdSetRange, Payload: 0x80000040})

		Expect(err).NotTo(HaveOccurred())
		Expect(rsp).To(Equal(Respond(1)))
		begin, end, ok := dev.Range()
		Expect(ok).To(BeTrue())
		Expect(begin).To(Equal(uint64(0x80001000)))
		Expect(end).To(Equal(uint64(0x80001020)))
	})

	It("should refuse an inverted range", func() {
		Expect(memif.WriteUint64(0x80000040, 0x80001020)).To(Succeed())
		Expect(memif.WriteUint64(0x80000048, 0x80001000)).To(Succeed())

		rsp, err := dev.Handle(Command{Cmd: SignatureCmdSetRange, Payload: 0x80000040})

		Expect(err).NotTo(HaveOccurred())
		Expect(rsp).To(Equal(Respond(0)))
		_, _, ok := dev.Range()
		Expect(ok).To(BeFalse())
	})

	It("should fault when the range pointer is not backed", func() {
		_, err := dev.Handle(Command{Cmd: SignatureCmdSetRange, Payload: 0x40})

		Expect(err).To(MatchError(mem.ErrOutOfRange))
	})

	It("should dump lines most significant byte first", func() {
		data := make([]byte, 20)
		for i := range data {
			data[i] = byte(i)
		}
		Expect(memif.Write(0x80002000, data)).To(Succeed())

		out := new(bytes.Buffer)
		err := WriteSignature(out, memif, 0x80002000, 0x80002014, 16)

		Expect(err).NotTo(HaveOccurred())
		Expect(out.String()).To(Equal(
			"0f0e0d0c0b0a09080706050403020100\n" +
				"00000000000000000000000013121110\n"))
	})
})

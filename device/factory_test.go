package device

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/htif/mem"
)

var _ = Describe("FactorySet", func() {
	var (
		set   *FactorySet
		memif *mem.Memif
	)

	BeforeEach(func() {
		set = NewFactorySet()
		memif, _ = newTestMemif()
	})

	It("should know the built-in kinds", func() {
		Expect(set.Kinds()).To(Equal([]string{"console", "signature"}))
	})

	It("should create devices from specs", func() {
		d, err := set.Create("signature", memif)

		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(BeAssignableToTypeOf(&SignatureDevice{}))
	})

	It("should pass arguments to the factory", func() {
		path := filepath.Join(GinkgoT().TempDir(), "console.log")

		d, err := set.Create("console:"+path, memif)
		Expect(err).NotTo(HaveOccurred())

		_, err = d.Handle(Command{Cmd: ConsoleCmdWrite, Arg: 'z'})
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(BeAnExistingFile())
	})

	It("should accept caller-supplied kinds", func() {
		Expect(set.Register("null", func(name string, _ *mem.Memif, args []string) (Device, error) {
			return NewConsole(name, nil, GinkgoWriter), nil
		})).To(Succeed())

		d, err := set.Create("null:a,b", memif)

		Expect(err).NotTo(HaveOccurred())
		Expect(d.Name()).To(Equal("null"))
	})

	It("should reject duplicated kinds", func() {
		Expect(set.Register("console", newConsoleFromArgs)).NotTo(Succeed())
	})

	It("should reject unknown kinds", func() {
		_, err := set.Create("rfb:0", memif)

		Expect(err).To(MatchError(ErrUnknownFactory))
	})
})

package device

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/htif/mem"
)

var _ = Describe("Registry", func() {
	var (
		mockCtrl *gomock.Controller
		memif    *mem.Memif
		registry *Registry
		devA     *MockDevice
		devB     *MockDevice
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		memif, _ = newTestMemif()

		registry = MakeRegistryBuilder().
			WithMemif(memif).
			Build()

		devA = NewMockDevice(mockCtrl)
		devA.EXPECT().Name().Return("syscall_proxy").AnyTimes()
		devB = NewMockDevice(mockCtrl)
		devB.EXPECT().Name().Return("bcd").AnyTimes()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should assign slots densely", func() {
		slotA, err := registry.Register(devA)
		Expect(err).NotTo(HaveOccurred())
		slotB, err := registry.Register(devB)
		Expect(err).NotTo(HaveOccurred())

		Expect(slotA).To(Equal(uint64(0)))
		Expect(slotB).To(Equal(uint64(1)))
		Expect(registry.Identities()).To(Equal([]Identity{
			{Slot: 0, Name: "syscall_proxy"},
			{Slot: 1, Name: "bcd"},
		}))
	})

	It("should reject overlapping slot claims", func() {
		Expect(registry.RegisterAt(2, devA)).To(Succeed())

		err := registry.RegisterAt(2, devB)

		Expect(err).To(MatchError(ErrSlotTaken))
	})

	It("should fill the gaps left by explicit claims", func() {
		Expect(registry.RegisterAt(0, devA)).To(Succeed())

		slot, err := registry.Register(devB)

		Expect(err).NotTo(HaveOccurred())
		Expect(slot).To(Equal(uint64(1)))
	})

	It("should refuse devices after being sealed", func() {
		registry.Seal()

		_, err := registry.Register(devA)

		Expect(err).To(MatchError(ErrSealed))
	})

	It("should run out of slots", func() {
		for i := uint64(0); i < DefaultPackedEncoding.MaxSlots(); i++ {
			_, err := registry.Register(devA)
			Expect(err).NotTo(HaveOccurred())
		}

		_, err := registry.Register(devB)

		Expect(err).To(MatchError(ErrNoFreeSlot))
	})

	It("should route commands to the owner of the slot", func() {
		_, _ = registry.Register(devA)
		_, _ = registry.Register(devB)

		cmd := Command{Slot: 1, Cmd: 1, Arg: 'h'}
		devB.EXPECT().Handle(cmd).Return(Respond(0x168), nil)

		d, rsp, err := registry.Dispatch(0, cmd)

		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(BeIdenticalTo(devB))
		Expect(rsp).To(Equal(Respond(0x168)))
	})

	It("should count commands for empty slots", func() {
		_, _ = registry.Register(devA)

		_, rsp, err := registry.Dispatch(0xe, Command{Slot: 7})
		_, _, err2 := registry.Dispatch(0xe, Command{Slot: 7})

		var protocolErr *ProtocolError
		Expect(errors.As(err, &protocolErr)).To(BeTrue())
		Expect(protocolErr.Word).To(Equal(uint64(0xe)))
		Expect(err2).To(HaveOccurred())
		Expect(rsp.Valid).To(BeFalse())
		Expect(registry.UnknownCommands()).To(Equal(uint64(2)))
	})

	It("should pass device errors through", func() {
		_, _ = registry.Register(devA)
		devA.EXPECT().Handle(gomock.Any()).Return(NoResponse, errors.New("disk full"))

		_, _, err := registry.Dispatch(2, Command{Slot: 0})

		Expect(err).To(MatchError("disk full"))
	})

	It("should answer identify with the device name", func() {
		_, _ = registry.Register(devA)
		cmd := Command{Slot: 0, Cmd: DefaultPackedEncoding.MaxCmd(), Payload: 0x80000100}

		_, rsp, err := registry.Dispatch(0, cmd)

		Expect(err).NotTo(HaveOccurred())
		Expect(rsp).To(Equal(Respond(1)))
		name, err := memif.ReadCString(0x80000100, IdentityNameSize)
		Expect(err).NotTo(HaveOccurred())
		Expect(name).To(Equal("syscall_proxy"))
	})

	It("should keep command 3 of the default layout for identify", func() {
		Expect(DefaultPackedEncoding.MaxCmd()).To(Equal(uint64(3)))

		_, _ = registry.Register(devA)
		devA.EXPECT().Handle(gomock.Any()).Times(0)

		_, _, err := registry.Dispatch(0,
			Command{Slot: 0, Cmd: 3, Payload: 0x80000200})

		Expect(err).NotTo(HaveOccurred())
	})

	It("should be deterministic for the same command sequence", func() {
		record := func() []Identity {
			r := MakeRegistryBuilder().Build()
			console := NewConsole("bcd", nil, GinkgoWriter)
			sig := NewSignatureDevice("signature", memif)
			_, _ = r.Register(sig)
			_, _ = r.Register(console)

			var seen []Identity
			for _, slot := range []uint64{1, 0, 1, 5, 1} {
				d, _, _ := r.Dispatch(0, Command{Slot: slot, Cmd: ConsoleCmdWrite, Arg: '.'})
				if d != nil {
					seen = append(seen, Identity{Slot: slot, Name: d.Name()})
				}
			}

			return seen
		}

		Expect(record()).To(Equal(record()))
	})
})

package monitoring

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/htif/bridge"
	"github.com/sarchlab/htif/device"
	"github.com/sarchlab/htif/tracing"
)

type sampleDevice struct {
	Pending int
	Label   string
}

func (d *sampleDevice) Name() string { return "sample" }

func (d *sampleDevice) Handle(device.Command) (device.Response, error) {
	return device.NoResponse, nil
}

var _ = Describe("Monitor", func() {
	var (
		mockCtrl *gomock.Controller
		b        *MockBridge
		registry *device.Registry
		m        *Monitor
		handler  http.Handler
	)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		return w
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		b = NewMockBridge(mockCtrl)

		registry = device.MakeRegistryBuilder().Build()
		Expect(registry.RegisterAt(2,
			&sampleDevice{Pending: 3, Label: "x"})).To(Succeed())
		b.EXPECT().Registry().Return(registry).AnyTimes()
		b.EXPECT().Name().Return("bridge").AnyTimes()

		m = NewMonitor()
		m.RegisterBridge(b)
		handler = m.Router()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should fall back to a random port below 1000", func() {
		Expect(m.WithPortNumber(80).portNumber).To(BeZero())
		Expect(m.WithPortNumber(8080).portNumber).To(Equal(8080))
	})

	It("should report the state", func() {
		b.EXPECT().State().Return(bridge.StateRunning)
		b.EXPECT().CurrentTime().Return(tracing.VTime(12))
		b.EXPECT().Stats().Return(bridge.Stats{Steps: 12, Commands: 4})

		w := get("/api/state")

		Expect(w.Code).To(Equal(http.StatusOK))

		var rsp stateRsp
		Expect(json.Unmarshal(w.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp).To(Equal(stateRsp{
			Name:     "bridge",
			State:    "running",
			Now:      12,
			Steps:    12,
			Commands: 4,
		}))
	})

	It("should list the devices", func() {
		w := get("/api/devices")

		Expect(w.Body.String()).To(MatchJSON(`[{"slot":2,"name":"sample"}]`))
	})

	It("should show the fields of a device", func() {
		w := get("/api/device/sample")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.Len()).To(BeNumerically(">", 0))
	})

	It("should look up the device of a field request", func() {
		req, err := json.Marshal(fieldReq{DeviceName: "disk", FieldName: "Label"})
		Expect(err).NotTo(HaveOccurred())

		w := get("/api/field/" + url.PathEscape(string(req)))

		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("should reject a malformed field request", func() {
		w := get("/api/field/" + url.PathEscape("{oops"))

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("should answer 404 for an unknown device", func() {
		w := get("/api/device/disk")

		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("should stop the bridge", func() {
		b.EXPECT().Stop()

		w := httptest.NewRecorder()
		handler.ServeHTTP(w,
			httptest.NewRequest(http.MethodPost, "/api/stop", nil))

		Expect(w.Code).To(Equal(http.StatusOK))
	})

	It("should not stop the bridge on a GET", func() {
		w := get("/api/stop")

		Expect(w.Code).To(Equal(http.StatusMethodNotAllowed))
	})

	It("should report process resources", func() {
		w := get("/api/resource")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring("memory_size"))
	})

	It("should collect a profile", func() {
		m.profileDuration = 10 * time.Millisecond

		w := get("/api/profile")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(json.Valid(w.Body.Bytes())).To(BeTrue())
	})

	It("should serve over HTTP", func() {
		u, err := m.StartServer()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(m.Close)

		rsp, err := http.Get(u + "/")
		Expect(err).NotTo(HaveOccurred())
		defer rsp.Body.Close()

		body, err := io.ReadAll(rsp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring("<h1>bridge</h1>"))
	})
})

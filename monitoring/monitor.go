// Package monitoring serves the state of a running bridge over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/htif/bridge"
	"github.com/sarchlab/htif/device"
	"github.com/sarchlab/htif/tracing"
)

// Bridge is what the monitor observes and controls.
type Bridge interface {
	Name() string
	State() bridge.State
	Stats() bridge.Stats
	CurrentTime() tracing.VTime
	Registry() *device.Registry
	Stop()
}

// Monitor turns a bridge run into a server that can be inspected and
// stopped from a browser.
type Monitor struct {
	bridge     Bridge
	portNumber int

	lock     sync.Mutex
	server   *http.Server
	listener net.Listener

	profileDuration time.Duration
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{profileDuration: time.Second}
}

// WithPortNumber sets the port number of the monitor. Zero picks a free
// port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterBridge sets the bridge to monitor.
func (m *Monitor) RegisterBridge(b Bridge) {
	m.bridge = b
}

// Router returns the handler that serves the monitor API.
func (m *Monitor) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", m.index).Methods(http.MethodGet)
	r.HandleFunc("/api/state", m.state).Methods(http.MethodGet)
	r.HandleFunc("/api/stop", m.stop).Methods(http.MethodPost)
	r.HandleFunc("/api/devices", m.listDevices).Methods(http.MethodGet)
	r.HandleFunc("/api/device/{name}", m.deviceDetails).Methods(http.MethodGet)
	r.HandleFunc("/api/field/{json}", m.fieldValue).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", m.collectProfile).Methods(http.MethodGet)

	return r
}

// StartServer starts serving in the background and returns the URL of the
// monitor.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp",
		"localhost:"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", fmt.Errorf("monitor: %w", err)
	}

	server := &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	m.lock.Lock()
	m.server = server
	m.listener = listener
	m.lock.Unlock()

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring bridge with %s\n", url)

	go func() {
		err := server.Serve(listener)
		if err != nil && err != http.ErrServerClosed {
			log.Printf("monitor: %v", err)
		}
	}()

	return url, nil
}

// OpenInBrowser shows the monitor page in the default browser.
func (m *Monitor) OpenInBrowser(url string) error {
	return browser.OpenURL(url)
}

// Close stops the server.
func (m *Monitor) Close() error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.server == nil {
		return nil
	}

	err := m.server.Close()
	m.server = nil

	return err
}

const indexPage = `<!DOCTYPE html>
<html>
<head><title>%[1]s</title></head>
<body>
<h1>%[1]s</h1>
<ul>
<li><a href="/api/state">state</a></li>
<li><a href="/api/devices">devices</a></li>
<li><a href="/api/resource">resources</a></li>
<li><a href="/api/profile">profile</a></li>
</ul>
</body>
</html>
`

func (m *Monitor) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, indexPage, m.bridge.Name())
}

type stateRsp struct {
	Name            string `json:"name"`
	State           string `json:"state"`
	Now             uint64 `json:"now"`
	Steps           uint64 `json:"steps"`
	Commands        uint64 `json:"commands"`
	Responses       uint64 `json:"responses"`
	ProtocolErrors  uint64 `json:"protocol_errors"`
	UnknownCommands uint64 `json:"unknown_commands"`
}

func (m *Monitor) state(w http.ResponseWriter, _ *http.Request) {
	stats := m.bridge.Stats()

	writeJSON(w, stateRsp{
		Name:            m.bridge.Name(),
		State:           m.bridge.State().String(),
		Now:             uint64(m.bridge.CurrentTime()),
		Steps:           stats.Steps,
		Commands:        stats.Commands,
		Responses:       stats.Responses,
		ProtocolErrors:  stats.ProtocolErrors,
		UnknownCommands: m.bridge.Registry().UnknownCommands(),
	})
}

func (m *Monitor) stop(w http.ResponseWriter, _ *http.Request) {
	m.bridge.Stop()
	w.WriteHeader(http.StatusOK)
}

type deviceRsp struct {
	Slot uint64 `json:"slot"`
	Name string `json:"name"`
}

func (m *Monitor) listDevices(w http.ResponseWriter, _ *http.Request) {
	ids := m.bridge.Registry().Identities()

	rsp := make([]deviceRsp, 0, len(ids))
	for _, id := range ids {
		rsp = append(rsp, deviceRsp{Slot: id.Slot, Name: id.Name})
	}

	writeJSON(w, rsp)
}

func (m *Monitor) deviceDetails(w http.ResponseWriter, r *http.Request) {
	d := m.findDeviceOr404(w, mux.Vars(r)["name"])
	if d == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(d)
	serializer.SetMaxDepth(1)

	if err := serializer.Serialize(w); err != nil {
		log.Printf("monitor: %v", err)
	}
}

type fieldReq struct {
	DeviceName string `json:"device_name,omitempty"`
	FieldName  string `json:"field_name,omitempty"`
}

func (m *Monitor) fieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}

	err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	d := m.findDeviceOr404(w, req.DeviceName)
	if d == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(d)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := serializer.Serialize(w); err != nil {
		log.Printf("monitor: %v", err)
	}
}

func (m *Monitor) findDeviceOr404(
	w http.ResponseWriter,
	name string,
) device.Device {
	for _, d := range m.bridge.Registry().Devices() {
		if d.Name() == name {
			return d
		}
	}

	http.Error(w, "Device not found", http.StatusNotFound)

	return nil
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	memoryInfo, err := proc.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(m.profileDuration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if _, err := w.Write(data); err != nil {
		log.Printf("monitor: %v", err)
	}
}

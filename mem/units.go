package mem

// For capacity
const (
	KB uint64 = 1 << 10
	MB uint64 = 1 << 20
	GB uint64 = 1 << 30
	TB uint64 = 1 << 40
)

// PageSize is the granularity that memory regions are aligned to.
const PageSize uint64 = 4 * KB

// DRAMBase is where a region given only by its size is placed.
const DRAMBase uint64 = 0x80000000

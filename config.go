package conet

// defaultEventBufferSize is reactor_event_buffer_size from spec §6: the
// maximum number of ready events drained per kernel wait.
const defaultEventBufferSize = 10000

// defaultSlotTableCapacity is used when RLIMIT_NOFILE can't be read.
const defaultSlotTableCapacity = 10000

// Config collects the reactor's few tunables. The zero value is invalid;
// NewReactor builds one from defaults plus the Option functions passed to it.
type Config struct {
	EventBufferSize  int
	SlotTableGrowth  int
	SlotTableInitCap int
}

// Option configures a Config; functional options keep NewReactor's
// signature stable as tunables are added, the shape used throughout the
// corpus for small non-file-backed configuration.
type Option func(*Config)

// WithEventBufferSize overrides reactor_event_buffer_size (spec §6).
func WithEventBufferSize(n int) Option {
	return func(c *Config) { c.EventBufferSize = n }
}

// WithSlotTableGrowth overrides the FdSlotTable's growth increment, passed
// through to NewFdSlotTable by NewReactor.
func WithSlotTableGrowth(n int) Option {
	return func(c *Config) { c.SlotTableGrowth = n }
}

// WithSlotTableInitCap overrides the FdSlotTable's initial capacity,
// bypassing the RLIMIT_NOFILE auto-sizing in defaultConfig.
func WithSlotTableInitCap(n int) Option {
	return func(c *Config) { c.SlotTableInitCap = n }
}

// defaultConfig seeds SlotTableInitCap from RLIMIT_NOFILE, following
// original_source/core/src/network.cpp's poll_wait_item_mgr_t, which sizes
// its table from getrlimit(RLIMIT_NOFILE) rather than a fixed constant.
func defaultConfig() Config {
	cap := rlimitNofileCurrent()
	if cap <= 0 {
		cap = defaultSlotTableCapacity
	}
	return Config{
		EventBufferSize:  defaultEventBufferSize,
		SlotTableGrowth:  slotGrowthIncrement,
		SlotTableInitCap: cap,
	}
}

func newConfig(opts ...Option) Config {
	c := defaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	if c.EventBufferSize <= 0 {
		c.EventBufferSize = defaultEventBufferSize
	}
	if c.SlotTableGrowth <= 0 {
		c.SlotTableGrowth = slotGrowthIncrement
	}
	if c.SlotTableInitCap < 0 {
		c.SlotTableInitCap = 0
	}
	return c
}

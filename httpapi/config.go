package httpapi

// Config defines HTTP debug API settings.
type Config struct {
	Addr       string
	EventLimit int
}

package console

// Config defines ops console settings.
type Config struct {
	Addr        string
	HostKeyPath string
	EventTail   int
}

package spawn

// Status tells apart the reasons nothing is being spawned.
type Status uint8

const (
	StatusIdle          Status = iota // below target, no loop yet
	StatusSpawning                    // scheduling loop running
	StatusAtCapacity                  // MaxObjects gems alive
	StatusPoolExhausted               // no free slot left until expiry or rescan
	StatusInert                       // misconfigured, never spawns
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSpawning:
		return "spawning"
	case StatusAtCapacity:
		return "at_capacity"
	case StatusPoolExhausted:
		return "pool_exhausted"
	case StatusInert:
		return "inert"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

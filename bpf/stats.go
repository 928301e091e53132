package bpf

import "fmt"

// Counter identifies a slot in the counter table.
type Counter uint32

const (
	Pkt Counter = iota
	IP
	IP6
	TCP
	UDP
	ICMP
	ICMP6
	ARP
	ACK
	SYN
)

// NumCounters is the number of counters the classifier maintains.
const NumCounters = 10

var counterNames = [NumCounters]string{
	Pkt:   "PKT",
	IP:    "IP",
	IP6:   "IP6",
	TCP:   "TCP",
	UDP:   "UDP",
	ICMP:  "ICMP",
	ICMP6: "ICMP6",
	ARP:   "ARP",
	ACK:   "ACK",
	SYN:   "SYN",
}

// Counters returns every counter in table order.
func Counters() []Counter {
	cs := make([]Counter, NumCounters)
	for i := range cs {
		cs[i] = Counter(i)
	}

	return cs
}

// Names returns the stable names of every counter, in table order.
func Names() []string {
	names := make([]string, NumCounters)
	copy(names, counterNames[:])

	return names
}

// Valid reports whether c addresses a counter the classifier maintains.
func (c Counter) Valid() bool {
	return c < NumCounters
}

func (c Counter) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Counter(%d)", uint32(c))
	}

	return counterNames[c]
}

// Lookup returns the counter registered under name. Names are case sensitive.
func Lookup(name string) (Counter, error) {
	for i, n := range counterNames {
		if n == name {
			return Counter(i), nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownCounter, name)
}

// ReverseLookup returns the name of counter id.
func ReverseLookup(id int) (string, error) {
	if id < 0 || id >= NumCounters {
		return "", fmt.Errorf("%w: id %d", ErrUnknownCounter, id)
	}

	return counterNames[id], nil
}

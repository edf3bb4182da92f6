package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Info describes who holds a lock. It is stored as info.json inside the
// lock directory.
type Info struct {
	User      string    `json:"user"`
	Hostname  string    `json:"hostname"`
	Started   time.Time `json:"started"`
	PID       int       `json:"pid"`
	Operation string    `json:"operation,omitempty"`
}

// NewInfo describes the current process performing operation.
func NewInfo(operation string) *Info {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	user := os.Getenv("USER")
	if user == "" {
		user = "unknown"
	}

	return &Info{
		User:      user,
		Hostname:  hostname,
		Started:   time.Now().UTC(),
		PID:       os.Getpid(),
		Operation: operation,
	}
}

// Age returns how long ago the lock was taken.
func (i *Info) Age() time.Duration {
	return time.Since(i.Started)
}

// Marshal serializes the info to JSON.
func (i *Info) Marshal() ([]byte, error) {
	return json.Marshal(i)
}

// ParseInfo decodes info.json.
func ParseInfo(data []byte) (*Info, error) {
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// String returns "user@host (pid N, deploy, 3m ago)".
func (i *Info) String() string {
	s := fmt.Sprintf("%s@%s (pid %d", i.User, i.Hostname, i.PID)
	if i.Operation != "" {
		s += ", " + i.Operation
	}
	if !i.Started.IsZero() {
		s += ", " + i.Age().Round(time.Second).String() + " ago"
	}
	return s + ")"
}

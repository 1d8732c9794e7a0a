package sheriff

import (
	"fmt"
	"os"

	"github.com/procman-go/sheriff/internal/clock"
)

// InstanceName derives a sheriff's own identity string as
// "<host>:<pid>:<startTimestamp>", unique across concurrently running
// sheriff processes.
func InstanceName(clk clock.Clock) string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	return fmt.Sprintf("%s:%d:%d", host, os.Getpid(), clk.Now().Unix())
}

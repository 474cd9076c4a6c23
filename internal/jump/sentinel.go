package jump

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/timvw/jump-ssh/internal/expect"
)

const sentinelPrefix = "JUMP_END_"

// Sentinel marks the end of one command's output. It is sent as two quoted
// fragments that only the remote shell joins, so the echoed command line
// never contains the marker itself.
type Sentinel struct {
	Prefix string
	Suffix string
}

// NewSentinel derives a sentinel from the unix time at now. If command
// already contains that marker the suffix is advanced until it does not.
func NewSentinel(now time.Time, command string) Sentinel {
	secs := now.Unix()
	for {
		s := Sentinel{Prefix: sentinelPrefix, Suffix: strconv.FormatInt(secs, 10)}
		if !strings.Contains(command, s.String()) {
			return s
		}
		secs++
	}
}

// String returns the joined marker as the remote shell prints it.
func (s Sentinel) String() string {
	return s.Prefix + s.Suffix
}

// Wrap appends the split echo of the marker to command.
func (s Sentinel) Wrap(command string) string {
	command = strings.TrimRight(command, " \t\r\n")
	sep := "; "
	switch {
	case command == "":
		sep = ""
	case strings.HasSuffix(command, ";"):
		sep = " "
	case strings.HasSuffix(command, "&") && !strings.HasSuffix(command, "&&"):
		sep = " "
	}
	return fmt.Sprintf("%s%secho '%s''%s'", command, sep, s.Prefix, s.Suffix)
}

// Pattern matches the joined marker.
func (s Sentinel) Pattern() expect.Pattern {
	return expect.Literal("sentinel", s.String())
}

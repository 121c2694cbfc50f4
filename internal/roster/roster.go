// internal/roster/roster.go
//
// Identity roster for the Daily Challenge mode.
//
// Responsibilities:
//   - Load the list of well-known figures from an environment-provided file
//     or fall back to the embedded default list.
//   - Normalize entries (trimmed, blank lines and comments skipped).
//   - Supply All(), Count() and Pick() lookups for daily selection.
//
// Environment variables:
//   ROSTER_FILE=/path/to/identities.txt
//
// Initialization is run once (sync.Once).

package roster

import (
	"bufio"
	_ "embed"
	"errors"
	"os"
	"strings"
	"sync"
)

//go:embed identities.txt
var embeddedRoster string

var (
	initOnce   sync.Once
	identities []string
	initialErr error
)

// Init loads the roster. Safe to call more than once; only the first call
// does work. Returns the load error, if any.
func Init() error {
	initOnce.Do(load)
	return initialErr
}

func load() {
	src := embeddedRoster
	if path := os.Getenv("ROSTER_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			initialErr = err
			return
		}
		src = string(data)
	}

	sc := bufio.NewScanner(strings.NewReader(src))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		identities = append(identities, line)
	}
	if err := sc.Err(); err != nil {
		initialErr = err
		return
	}
	if len(identities) == 0 {
		initialErr = errors.New("roster: no identities loaded")
	}
}

// All returns the loaded identity list.
func All() []string {
	initOnce.Do(load)
	return identities
}

// Count returns the number of loaded identities.
func Count() int {
	initOnce.Do(load)
	return len(identities)
}

// Pick returns the identity at index i (modulo the roster size), or ""
// when the roster is empty.
func Pick(i int) string {
	initOnce.Do(load)
	if len(identities) == 0 {
		return ""
	}
	if i < 0 {
		i = -i
	}
	return identities[i%len(identities)]
}

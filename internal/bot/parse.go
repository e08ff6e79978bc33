package bot

import (
	"fmt"
	"strconv"
	"strings"
)

const maxIntervalMinutes = 7 * 24 * 60

// ParseSupplierArg extracts a supplier name from a command argument string.
// Names may contain spaces.
func ParseSupplierArg(args string) (string, error) {
	name := strings.Join(strings.Fields(args), " ")
	if name == "" {
		return "", fmt.Errorf("supplier name is required")
	}
	return name, nil
}

// ParseIDArg extracts a rule ID from a command argument string. An "R" prefix is accepted.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("rule ID is required")
	}
	first := strings.Fields(s)[0]
	first = strings.TrimPrefix(strings.TrimPrefix(first, "R"), "r")
	id, err := strconv.ParseInt(first, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid rule ID %q", s)
	}
	return id, nil
}

// ParseIntervalArgs extracts a supplier name and an interval in minutes.
// The interval is the last argument.
func ParseIntervalArgs(args string) (string, int, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return "", 0, fmt.Errorf("usage: /interval <supplier> <minutes>")
	}
	mins, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil || mins < 1 || mins > maxIntervalMinutes {
		return "", 0, fmt.Errorf("interval must be between 1 and %d minutes", maxIntervalMinutes)
	}
	return strings.Join(parts[:len(parts)-1], " "), mins, nil
}

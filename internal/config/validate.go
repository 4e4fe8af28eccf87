package config

import (
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

var availableLogLevels = []string{"trace", "debug", "info", "warn", "error"}

func checkPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port out of range: %d", port)
	}
	return nil
}

func checkLogLevel(s string) error {
	if s == "" {
		return nil
	}
	if !slices.Contains(availableLogLevels, strings.ToLower(s)) {
		return fmt.Errorf("unknown log level %q, expected one of %v", s, availableLogLevels)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(s)); err != nil {
		return err
	}
	return nil
}

func checkDNSMode(s string) error {
	if s == "" {
		return nil
	}
	if !slices.Contains(availableDNSModes, strings.ToLower(s)) {
		return fmt.Errorf("unknown dns mode %q, expected one of %v", s, availableDNSModes)
	}
	return nil
}

func checkHostPort(s string) error {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return err
	}

	if host == "" {
		return fmt.Errorf("missing host in %q", s)
	}

	if net.ParseIP(host) == nil {
		return fmt.Errorf("invalid ip %q", host)
	}

	p, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid port %q", port)
	}

	return checkPort(p)
}

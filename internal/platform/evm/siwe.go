package evm

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

const siwePreamble = " wants you to sign in with your Ethereum account:"

var (
	siweNonceRe    = regexp.MustCompile(`Nonce: "?([a-zA-Z0-9\-]+)"?`)
	siweChainRe    = regexp.MustCompile(`Chain ID: (\d+)`)
	siweIssuedAtRe = regexp.MustCompile(`Issued At: (.+)`)
	siweURIRe      = regexp.MustCompile(`URI: (.+)`)

	ErrMalformedSIWE = errors.New("malformed SIWE message")
)

// SIWEMessage holds the EIP-4361 fields the backend checks. Base Account and
// other smart wallets sometimes omit optional lines, so only the first two
// lines are positional.
type SIWEMessage struct {
	Domain   string
	Address  string
	URI      string
	ChainID  int64
	Nonce    string
	IssuedAt string
}

func ParseSIWE(message string) (SIWEMessage, error) {
	message = strings.ReplaceAll(strings.TrimSpace(message), "\r\n", "\n")
	if message == "" {
		return SIWEMessage{}, ErrMalformedSIWE
	}
	lines := strings.Split(message, "\n")

	var out SIWEMessage
	first := lines[0]
	if i := strings.Index(first, siwePreamble); i >= 0 {
		out.Domain = strings.TrimSpace(first[:i])
	} else {
		out.Domain = strings.TrimSpace(first)
	}
	if len(lines) > 1 {
		out.Address = strings.TrimSpace(lines[1])
	}
	if m := siweNonceRe.FindStringSubmatch(message); m != nil {
		out.Nonce = m[1]
	}
	if m := siweChainRe.FindStringSubmatch(message); m != nil {
		if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			out.ChainID = id
		}
	}
	if m := siweIssuedAtRe.FindStringSubmatch(message); m != nil {
		out.IssuedAt = strings.TrimSpace(m[1])
	}
	if m := siweURIRe.FindStringSubmatch(message); m != nil {
		out.URI = strings.TrimSpace(m[1])
	}
	return out, nil
}

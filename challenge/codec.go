// Package challenge renders and parses the sign-in message a wallet signs.
//
// The layout is fixed so that the nonce and the address can be pulled
// back out of whatever text the wallet returns:
//
//	Zeo wants you to sign in with your Ethereum account:
//	0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed
//
//	Sign in to Zeo.
//
//	Chain ID: 1
//	Nonce: 9f86d081884c7d659a2feaa0c55ad015
//	Issued At: 2024-01-01T19:00:01.000Z
package challenge

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultAppName = "Zeo"

	// DefaultChainID is used when a client does not say which chain it is on
	DefaultChainID = 1

	issuedAtLayout = "2006-01-02T15:04:05.000Z"
)

var (
	nonceRe          = regexp.MustCompile(`Nonce:\s*(\S+)`)
	labeledAddressRe = regexp.MustCompile(`Address:\s*(0x[a-fA-F0-9]{40})`)
	anyAddressRe     = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)
)

// Codec renders challenge messages for one application name
type Codec struct {
	appName string
}

// NewCodec creates a codec, an empty name falls back to DefaultAppName
func NewCodec(appName string) *Codec {
	if appName == "" {
		appName = DefaultAppName
	}
	return &Codec{appName: appName}
}

// Render builds the message the wallet is asked to sign
func (c *Codec) Render(address string, chainID int64, nonce string, issuedAt time.Time) string {
	if chainID == 0 {
		chainID = DefaultChainID
	}

	return strings.Join([]string{
		c.appName + " wants you to sign in with your Ethereum account:",
		address,
		"",
		"Sign in to " + c.appName + ".",
		"",
		"Chain ID: " + strconv.FormatInt(chainID, 10),
		"Nonce: " + nonce,
		"Issued At: " + issuedAt.UTC().Format(issuedAtLayout),
	}, "\n")
}

// ExtractNonce returns the value following the Nonce label.
// Hex and UUID-like values are both accepted.
func ExtractNonce(text string) (string, bool) {
	m := nonceRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ExtractAddress returns the address labeled with "Address:" or, failing
// that, the first 0x-prefixed 40 hex digit token in the text
func ExtractAddress(text string) (string, bool) {
	if m := labeledAddressRe.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	if m := anyAddressRe.FindString(text); m != "" {
		return m, true
	}
	return "", false
}

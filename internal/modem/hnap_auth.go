package modem

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// HNAP authentication primitives. The device speaks the D-Link HNAP1
// challenge scheme: every secret is an uppercase hex HMAC-MD5, and every
// request carries an HNAP_AUTH header derived from a millisecond timestamp
// and the SOAP action URI.

const hnapActionPrefix = "http://purenetworks.com/HNAP1/"

// hnapHMAC returns the uppercase hex HMAC-MD5 of msg under key.
func hnapHMAC(key, msg string) string {
	mac := hmac.New(md5.New, []byte(key))
	mac.Write([]byte(msg))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// hnapPrivateKey derives the session private key from the login challenge.
func hnapPrivateKey(publicKey, password, challenge string) string {
	return hnapHMAC(publicKey+password, challenge)
}

// hnapLoginPassword derives the login password sent in the second login
// request.
func hnapLoginPassword(privateKey, challenge string) string {
	return hnapHMAC(privateKey, challenge)
}

// hnapAuthHeader builds the HNAP_AUTH header for a SOAP action. The header
// is "<HMAC> <time>" where time is the current epoch in milliseconds,
// wrapped at 2e12 as the firmware expects. Before login, privateKey is the
// literal "withoutloginkey".
func hnapAuthHeader(privateKey, soapAction string, now time.Time) string {
	ms := now.UnixMilli() % 2000000000000
	ts := strconv.FormatInt(ms, 10)
	digest := hnapHMAC(privateKey, ts+hnapActionPrefix+soapAction)
	return digest + " " + ts
}

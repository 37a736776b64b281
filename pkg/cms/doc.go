// Package cms produces PKCS#7/CMS signed-data envelopes over plaintext
// payloads, as the WSAA login protocol requires. Signers are stateless and
// safe for concurrent use.
package cms

// Package wsaa implements the AFIP WSAA login protocol: it builds a
// loginTicketRequest, signs it as CMS, wraps the signature in a SOAP envelope
// and extracts the issued access ticket from the response.
//
// Tickets are short-lived credentials. The client performs no caching or
// background renewal; callers renew before the expiry they requested.
package wsaa

// Package transport implements the HTTPS SOAP transport used by the WSAA and
// WSFEv1 clients: a single synchronous POST per protocol call, with the fixed
// headers the services require. Retry policy, if any, belongs to the caller.
package transport

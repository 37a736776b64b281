// Package xmldoc implements the namespace-aware XML document model shared by
// the WSAA and WSFEv1 protocol clients.
//
// A Document is a mutable tree rooted at a single element. Namespace prefix
// bindings are attached to the document at construction time, never merged per
// query, so every lookup and every constructed element uses one consistent
// namespace context.
//
// Lookups use a minimal path language instead of full XPath: paths are
// slash-separated segments, each either "prefix:Local" or a bare local name.
// A prefixed segment matches elements by namespace URI (resolved through the
// document's binding table), so the remote service is free to use a different
// prefix for the same namespace. A bare segment matches by local name alone.
// Each segment selects matching descendants of the previous context in
// document order.
package xmldoc

package wsfe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gofactura/go-afip/pkg/transport"
	"github.com/gofactura/go-afip/pkg/wsaa"
	"github.com/gofactura/go-afip/pkg/xmldoc"
)

// Fixed protocol endpoints, one per environment.
const (
	EndpointTesting    = "https://wswhomo.afip.gov.ar/wsfev1/service.asmx"
	EndpointProduction = "https://servicios1.afip.gov.ar/wsfev1/service.asmx"

	soapActionBase = "http://ar.gov.afip.dif.FEV1/"
)

var namespaces = map[string]string{
	"soapenv": "http://www.w3.org/2003/05/soap-envelope",
	"ar":      "http://ar.gov.afip.dif.FEV1/",
}

// arBindings is the binding table for fragments built independently and
// spliced into the envelope. Declaring ar on each fragment root keeps every
// fragment self-contained; the redeclaration is redundant once spliced but
// binds the same URI.
var arBindings = map[string]string{
	"ar": "http://ar.gov.afip.dif.FEV1/",
}

var (
	// ErrArgument is wrapped when a required argument is missing or zero.
	// Raised before any network call.
	ErrArgument = errors.New("invalid argument")
	// ErrProtocol is wrapped when a response parses as XML but lacks the
	// fields the protocol guarantees.
	ErrProtocol = errors.New("unexpected WSFE response shape")
)

// ServiceError reports that the service rejected a read-only query with one
// or more coded errors. Batch submissions never produce it: their rejections
// come back as BatchResult.Errors.
type ServiceError struct {
	Errors []FEError
}

func (e *ServiceError) Error() string {
	first := e.Errors[0]
	if len(e.Errors) == 1 {
		return fmt.Sprintf("service rejected request: [%d] %s", first.Code, first.Msg)
	}
	return fmt.Sprintf("service rejected request with %d errors, first: [%d] %s",
		len(e.Errors), first.Code, first.Msg)
}

// Client calls the invoicing service on behalf of one CUIT, authenticated by
// an access ticket obtained from the wsaa package.
type Client struct {
	transport transport.Client
	endpoint  string
	cuit      string
	token     string
	sign      string
	logger    *slog.Logger
	sequences *sequenceGuard
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the HTTP transport, mainly for tests.
func WithTransport(t transport.Client) Option {
	return func(c *Client) { c.transport = t }
}

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates an invoicing client for the given ticket and taxpayer
// CUIT. testing selects the homologation endpoint.
func NewClient(ticket *wsaa.AccessTicket, cuit string, testing bool, opts ...Option) (*Client, error) {
	if ticket == nil || ticket.Token == "" || ticket.Sign == "" {
		return nil, fmt.Errorf("%w: access ticket is required", ErrArgument)
	}
	if cuit == "" {
		return nil, fmt.Errorf("%w: cuit is required", ErrArgument)
	}

	endpoint := EndpointProduction
	if testing {
		endpoint = EndpointTesting
	}

	c := &Client{
		transport: transport.NewHTTPSClient(nil),
		endpoint:  endpoint,
		cuit:      cuit,
		token:     ticket.Token,
		sign:      ticket.Sign,
		logger:    slog.Default(),
		sequences: newSequenceGuard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// LastAuthorized returns the highest already-authorized invoice number for
// the (point of sale, invoice type) pair. A coded rejection from the service
// is returned as a *ServiceError: without the number the caller cannot
// proceed to authorization.
func (c *Client) LastAuthorized(ctx context.Context, ptoVta, cbteTipo int) (*LastAuthorized, error) {
	if ptoVta <= 0 {
		return nil, fmt.Errorf("%w: ptoVta must be positive", ErrArgument)
	}
	if cbteTipo <= 0 {
		return nil, fmt.Errorf("%w: cbteTipo must be positive", ErrArgument)
	}

	request, err := c.buildBaseRequest("FECompUltimoAutorizado")
	if err != nil {
		return nil, err
	}
	w := &docWriter{doc: request}
	w.text("ar:FECompUltimoAutorizado", "ar:PtoVta", strconv.Itoa(ptoVta))
	w.text("ar:FECompUltimoAutorizado", "ar:CbteTipo", strconv.Itoa(cbteTipo))
	if w.err != nil {
		return nil, w.err
	}

	response, err := c.call(ctx, "FECompUltimoAutorizado", request)
	if err != nil {
		return nil, err
	}
	if err := c.checkServiceErrors(response); err != nil {
		return nil, err
	}

	rsPtoVta, err := requireInt(response, "ar:PtoVta")
	if err != nil {
		return nil, err
	}
	rsCbteTipo, err := requireInt(response, "ar:CbteTipo")
	if err != nil {
		return nil, err
	}
	cbteNro, err := requireInt64(response, "ar:CbteNro")
	if err != nil {
		return nil, err
	}

	return &LastAuthorized{PtoVta: rsPtoVta, CbteTipo: rsCbteTipo, CbteNro: cbteNro}, nil
}

// MaxBatchSize returns the maximum number of invoices the service currently
// accepts per authorization request. The client does not enforce the limit;
// respecting it is the caller's responsibility.
func (c *Client) MaxBatchSize(ctx context.Context) (int, error) {
	request, err := c.buildBaseRequest("FECompTotXRequest")
	if err != nil {
		return 0, err
	}
	response, err := c.call(ctx, "FECompTotXRequest", request)
	if err != nil {
		return 0, err
	}
	if err := c.checkServiceErrors(response); err != nil {
		return 0, err
	}
	return requireInt(response, "ar:RegXReq")
}

// call posts the request with the method's SOAPAction and parses the response.
func (c *Client) call(ctx context.Context, method string, request *xmldoc.Document) (*xmldoc.Document, error) {
	body := request.StringWithDeclaration()
	c.logger.Debug("calling WSFE", "method", method, "endpoint", c.endpoint, "body_bytes", len(body))

	raw, err := c.transport.Post(ctx, c.endpoint, body, soapActionBase+method)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("WSFE responded", "method", method, "body_bytes", len(raw))
	return xmldoc.Parse(raw, namespaces)
}

// buildBaseRequest builds the envelope with the method element and the auth
// node every operation carries.
func (c *Client) buildBaseRequest(method string) (*xmldoc.Document, error) {
	doc := xmldoc.New("soapenv:Envelope", namespaces)
	w := &docWriter{doc: doc}
	w.element("", "soapenv:Header")
	w.element("", "soapenv:Body")
	w.element("soapenv:Body", "ar:"+method)
	w.fragment("ar:"+method, c.authNode())
	if w.err != nil {
		return nil, w.err
	}
	return doc, nil
}

// authNode builds the Auth element as its own document, spliced into each
// request as a fragment.
func (c *Client) authNode() string {
	doc := xmldoc.New("ar:Auth", arBindings)
	w := &docWriter{doc: doc}
	w.text("", "ar:Token", c.token)
	w.text("", "ar:Sign", c.sign)
	w.text("", "ar:Cuit", c.cuit)
	return doc.String()
}

// checkServiceErrors turns a coded Errors section on a read-only query into a
// *ServiceError.
func (c *Client) checkServiceErrors(response *xmldoc.Document) error {
	pairs, err := response.CodeMessages("ar:Errors", "ar:Err")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if len(pairs) == 0 {
		return nil
	}
	return &ServiceError{Errors: toFEErrors(pairs)}
}

func toFEErrors(pairs []xmldoc.CodeMessage) []FEError {
	out := make([]FEError, len(pairs))
	for i, pair := range pairs {
		out[i] = FEError{Code: pair.Code, Msg: pair.Msg}
	}
	return out
}

func toObservations(pairs []xmldoc.CodeMessage) []Observation {
	out := make([]Observation, len(pairs))
	for i, pair := range pairs {
		out[i] = Observation{Code: pair.Code, Msg: pair.Msg}
	}
	return out
}

// docWriter chains document mutations, keeping the first error.
type docWriter struct {
	doc *xmldoc.Document
	err error
}

func (w *docWriter) element(parent, name string) {
	if w.err == nil {
		w.err = w.doc.AddElement(parent, name)
	}
}

func (w *docWriter) text(parent, name, value string) {
	if w.err == nil {
		w.err = w.doc.AddElementText(parent, name, value)
	}
}

func (w *docWriter) fragment(parent, raw string) {
	if w.err == nil {
		w.err = w.doc.AddFragment(parent, raw)
	}
}

// response field helpers

func requireText(doc *xmldoc.Document, path string) (string, error) {
	value, ok := doc.Text(path)
	if !ok {
		return "", fmt.Errorf("%w: missing %s", ErrProtocol, path)
	}
	return value, nil
}

func requireInt(doc *xmldoc.Document, path string) (int, error) {
	raw, err := requireText(doc, path)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: non-numeric %s: %q", ErrProtocol, path, raw)
	}
	return value, nil
}

func requireInt64(doc *xmldoc.Document, path string) (int64, error) {
	raw, err := requireText(doc, path)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: non-numeric %s: %q", ErrProtocol, path, raw)
	}
	return value, nil
}

func optionalText(doc *xmldoc.Document, path string) string {
	value, _ := doc.Text(path)
	return value
}

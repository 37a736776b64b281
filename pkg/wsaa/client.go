package wsaa

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofactura/go-afip/pkg/cms"
	"github.com/gofactura/go-afip/pkg/transport"
	"github.com/gofactura/go-afip/pkg/xmldoc"
)

// Fixed protocol endpoints, one per environment.
const (
	EndpointTesting    = "https://wsaahomo.afip.gov.ar/ws/services/LoginCms"
	EndpointProduction = "https://wsaa.afip.gov.ar/ws/services/LoginCms"

	// ServiceWSFE is the service name to request when the ticket will be
	// used against the electronic invoicing service.
	ServiceWSFE = "wsfe"

	soapAction = "urn:LoginCms"

	// ticketValidity is the requested ticket lifetime. The protocol fixes
	// it at ten minutes; it is not configurable.
	ticketValidity = 10 * time.Minute

	timestampLayout = "2006-01-02T15:04:05"

	// authorityTimezone is the invoicing authority's civil timezone. Ticket
	// timestamps are expressed in it, not in UTC.
	authorityTimezone = "America/Argentina/Buenos_Aires"
)

var namespaces = map[string]string{
	"soapenv": "http://schemas.xmlsoap.org/soap/envelope/",
	"wsaa":    "http://wsaa.view.sua.dvadac.desein.afip.gov",
}

// ErrProtocol is wrapped when a response parses as XML but lacks the fields
// the protocol guarantees.
var ErrProtocol = errors.New("unexpected WSAA response shape")

// Client obtains access tickets from the authentication service.
type Client struct {
	signer    *cms.Signer
	transport transport.Client
	endpoint  string
	service   string
	logger    *slog.Logger
	now       func() time.Time
	location  *time.Location
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

// WithClock replaces the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a login client for the given PEM credentials and target
// service name. testing selects the homologation endpoint.
func NewClient(certPEM, keyPEM []byte, service string, testing bool, opts ...Option) (*Client, error) {
	if service == "" {
		return nil, fmt.Errorf("service name is required")
	}
	signer, err := cms.NewSigner(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	location, err := time.LoadLocation(authorityTimezone)
	if err != nil {
		return nil, fmt.Errorf("loading authority timezone: %w", err)
	}

	endpoint := EndpointProduction
	if testing {
		endpoint = EndpointTesting
	}

	c := &Client{
		signer:    signer,
		transport: transport.NewHTTPSClient(nil),
		endpoint:  endpoint,
		service:   service,
		logger:    slog.Default(),
		now:       time.Now,
		location:  location,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// LoginTicket requests a fresh access ticket. The request is built, signed,
// enveloped and submitted; any failed step aborts without a partial credential.
func (c *Client) LoginTicket(ctx context.Context) (*AccessTicket, error) {
	generated := c.now().In(c.location)
	expires := generated.Add(ticketValidity)

	request, err := c.buildTicketRequest(generated, expires)
	if err != nil {
		return nil, err
	}

	signed, err := c.signer.Sign([]byte(request.StringWithDeclaration()))
	if err != nil {
		return nil, err
	}

	envelope, err := buildLoginEnvelope(cms.StripArmor(signed))
	if err != nil {
		return nil, err
	}

	c.logger.Debug("requesting access ticket", "service", c.service, "endpoint", c.endpoint)

	response, err := c.transport.Post(ctx, c.endpoint, envelope.StringWithDeclaration(), soapAction)
	if err != nil {
		return nil, err
	}

	token, sign, err := extractTicket(response)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("access ticket issued", "service", c.service, "expires_at", expires)

	return &AccessTicket{
		Token:       token,
		Sign:        sign,
		GeneratedAt: generated,
		ExpiresAt:   expires,
	}, nil
}

// buildTicketRequest constructs the loginTicketRequest document: a unique
// request id, the generation and expiration timestamps in the authority's
// civil timezone, and the target service name.
func (c *Client) buildTicketRequest(generated, expires time.Time) (*xmldoc.Document, error) {
	id, err := uniqueRequestID()
	if err != nil {
		return nil, err
	}

	doc := xmldoc.New("loginTicketRequest", nil)
	if err := doc.AddElement("", "header"); err != nil {
		return nil, err
	}
	if err := doc.AddElementText("header", "uniqueId", fmt.Sprintf("%d", id)); err != nil {
		return nil, err
	}
	if err := doc.AddElementText("header", "generationTime", generated.Format(timestampLayout)); err != nil {
		return nil, err
	}
	if err := doc.AddElementText("header", "expirationTime", expires.Format(timestampLayout)); err != nil {
		return nil, err
	}
	if err := doc.AddElementText("", "service", c.service); err != nil {
		return nil, err
	}
	return doc, nil
}

// buildLoginEnvelope wraps the armor-stripped CMS body in the transport
// envelope's single payload element.
func buildLoginEnvelope(cmsBody string) (*xmldoc.Document, error) {
	doc := xmldoc.New("soapenv:Envelope", namespaces)
	if err := doc.AddElement("", "soapenv:Header"); err != nil {
		return nil, err
	}
	if err := doc.AddElement("", "soapenv:Body"); err != nil {
		return nil, err
	}
	if err := doc.AddElement("soapenv:Body", "wsaa:loginCms"); err != nil {
		return nil, err
	}
	if err := doc.AddElementText("wsaa:loginCms", "wsaa:in0", cmsBody); err != nil {
		return nil, err
	}
	return doc, nil
}

// extractTicket reads the token and signature out of the login response. The
// response body carries the ticket as an XML document escaped inside the
// loginCmsReturn element, so it is re-parsed as its own document first.
func extractTicket(response string) (token, sign string, err error) {
	envelope, err := xmldoc.Parse(response, namespaces)
	if err != nil {
		return "", "", err
	}
	inner, ok := envelope.Text("wsaa:loginCmsReturn")
	if !ok {
		return "", "", fmt.Errorf("%w: missing loginCmsReturn", ErrProtocol)
	}

	ticket, err := xmldoc.Parse(inner, nil)
	if err != nil {
		return "", "", err
	}
	token, ok = ticket.Text("token")
	if !ok {
		return "", "", fmt.Errorf("%w: missing token", ErrProtocol)
	}
	sign, ok = ticket.Text("sign")
	if !ok {
		return "", "", fmt.Errorf("%w: missing sign", ErrProtocol)
	}
	return token, sign, nil
}

// uniqueRequestID draws a random request id in [1, 2^32-1]. The range is wide
// enough that collisions are negligible; the service rejects them remotely.
func uniqueRequestID() (uint32, error) {
	var buf [4]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("generating request id: %w", err)
		}
		if id := binary.BigEndian.Uint32(buf[:]); id != 0 {
			return id, nil
		}
	}
}

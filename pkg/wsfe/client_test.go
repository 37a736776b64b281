package wsfe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofactura/go-afip/pkg/wsaa"
	"github.com/gofactura/go-afip/pkg/xmldoc"
)

// scriptedTransport answers successive calls from a response queue, recording
// each outgoing request.
type scriptedTransport struct {
	responses []string
	bodies    []string
	actions   []string
	err       error
}

func (s *scriptedTransport) Post(ctx context.Context, endpoint, body, soapAction string) (string, error) {
	s.bodies = append(s.bodies, body)
	s.actions = append(s.actions, soapAction)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", errors.New("scripted transport exhausted")
	}
	response := s.responses[0]
	s.responses = s.responses[1:]
	return response, nil
}

// wsfeResponse wraps method result XML in the service's SOAP 1.2 envelope. The
// response elements live in the service namespace as the default namespace,
// exactly as the real service answers.
func wsfeResponse(method, result string) string {
	return `<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body>` +
		`<` + method + `Response xmlns="http://ar.gov.afip.dif.FEV1/">` +
		`<` + method + `Result>` + result + `</` + method + `Result>` +
		`</` + method + `Response></soap:Body></soap:Envelope>`
}

const errorsFragment = `<Errors><Err><Code>10016</Code><Msg>CUIT no autorizado</Msg></Err></Errors>`

func testTicket() *wsaa.AccessTicket {
	return &wsaa.AccessTicket{Token: "tok", Sign: "sig"}
}

func newTestClient(t *testing.T, transport *scriptedTransport) *Client {
	t.Helper()
	client, err := NewClient(testTicket(), "20123456789", true, WithTransport(transport))
	require.NoError(t, err)
	return client
}

func parseRequest(t *testing.T, body string) *xmldoc.Document {
	t.Helper()
	doc, err := xmldoc.Parse(body, namespaces)
	require.NoError(t, err)
	return doc
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, "20123456789", true)
	assert.ErrorIs(t, err, ErrArgument)

	_, err = NewClient(&wsaa.AccessTicket{Token: "tok"}, "20123456789", true)
	assert.ErrorIs(t, err, ErrArgument)

	_, err = NewClient(testTicket(), "", true)
	assert.ErrorIs(t, err, ErrArgument)
}

func TestNewClient_EndpointSelection(t *testing.T) {
	testing_, err := NewClient(testTicket(), "20123456789", true)
	require.NoError(t, err)
	assert.Equal(t, EndpointTesting, testing_.endpoint)

	production, err := NewClient(testTicket(), "20123456789", false)
	require.NoError(t, err)
	assert.Equal(t, EndpointProduction, production.endpoint)
}

func TestLastAuthorized(t *testing.T) {
	transport := &scriptedTransport{responses: []string{
		wsfeResponse("FECompUltimoAutorizado", `<PtoVta>4</PtoVta><CbteTipo>11</CbteTipo><CbteNro>100</CbteNro>`),
	}}
	client := newTestClient(t, transport)

	last, err := client.LastAuthorized(context.Background(), 4, 11)
	require.NoError(t, err)
	assert.Equal(t, &LastAuthorized{PtoVta: 4, CbteTipo: 11, CbteNro: 100}, last)

	require.Len(t, transport.actions, 1)
	assert.Equal(t, "http://ar.gov.afip.dif.FEV1/FECompUltimoAutorizado", transport.actions[0])

	request := parseRequest(t, transport.bodies[0])
	ptoVta, _ := request.Text("ar:FECompUltimoAutorizado/ar:PtoVta")
	assert.Equal(t, "4", ptoVta)
	cbteTipo, _ := request.Text("ar:FECompUltimoAutorizado/ar:CbteTipo")
	assert.Equal(t, "11", cbteTipo)
}

func TestLastAuthorized_CarriesAuthNode(t *testing.T) {
	transport := &scriptedTransport{responses: []string{
		wsfeResponse("FECompUltimoAutorizado", `<PtoVta>4</PtoVta><CbteTipo>11</CbteTipo><CbteNro>0</CbteNro>`),
	}}
	client := newTestClient(t, transport)

	_, err := client.LastAuthorized(context.Background(), 4, 11)
	require.NoError(t, err)

	request := parseRequest(t, transport.bodies[0])
	token, _ := request.Text("ar:Auth/ar:Token")
	assert.Equal(t, "tok", token)
	sign, _ := request.Text("ar:Auth/ar:Sign")
	assert.Equal(t, "sig", sign)
	cuit, _ := request.Text("ar:Auth/ar:Cuit")
	assert.Equal(t, "20123456789", cuit)
}

func TestLastAuthorized_ArgumentValidation(t *testing.T) {
	client := newTestClient(t, &scriptedTransport{})

	_, err := client.LastAuthorized(context.Background(), 0, 11)
	assert.ErrorIs(t, err, ErrArgument)

	_, err = client.LastAuthorized(context.Background(), 4, -1)
	assert.ErrorIs(t, err, ErrArgument)
}

func TestLastAuthorized_ServiceError(t *testing.T) {
	transport := &scriptedTransport{responses: []string{
		wsfeResponse("FECompUltimoAutorizado", errorsFragment),
	}}
	client := newTestClient(t, transport)

	_, err := client.LastAuthorized(context.Background(), 4, 11)
	require.Error(t, err)

	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	require.Len(t, svcErr.Errors, 1)
	assert.Equal(t, 10016, svcErr.Errors[0].Code)
	assert.Equal(t, "CUIT no autorizado", svcErr.Errors[0].Msg)
	assert.Contains(t, svcErr.Error(), "10016")
}

func TestLastAuthorized_MalformedResponse(t *testing.T) {
	transport := &scriptedTransport{responses: []string{
		wsfeResponse("FECompUltimoAutorizado", `<PtoVta>4</PtoVta>`),
	}}
	client := newTestClient(t, transport)

	_, err := client.LastAuthorized(context.Background(), 4, 11)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestMaxBatchSize(t *testing.T) {
	transport := &scriptedTransport{responses: []string{
		wsfeResponse("FECompTotXRequest", `<RegXReq>250</RegXReq>`),
	}}
	client := newTestClient(t, transport)

	max, err := client.MaxBatchSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 250, max)
	assert.Equal(t, "http://ar.gov.afip.dif.FEV1/FECompTotXRequest", transport.actions[0])
}

func TestMaxBatchSize_ServiceError(t *testing.T) {
	transport := &scriptedTransport{responses: []string{
		wsfeResponse("FECompTotXRequest", errorsFragment),
	}}
	client := newTestClient(t, transport)

	_, err := client.MaxBatchSize(context.Background())
	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
}

func TestParseResult(t *testing.T) {
	for _, code := range []string{"A", "R", "P"} {
		result, err := ParseResult(code)
		require.NoError(t, err)
		assert.Equal(t, Result(code), result)
	}

	_, err := ParseResult("X")
	assert.ErrorIs(t, err, ErrProtocol)
	_, err = ParseResult("")
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestSequenceGuard(t *testing.T) {
	guard := newSequenceGuard()

	first := guard.get("20123456789", 4, 11)
	again := guard.get("20123456789", 4, 11)
	other := guard.get("20123456789", 4, 12)

	assert.Same(t, first, again)
	assert.NotSame(t, first, other)
}

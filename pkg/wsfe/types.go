package wsfe

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Result is the closed set of authorization outcomes. Any other code coming
// from the service is a decoding failure.
type Result string

const (
	// ResultApproved means every validation passed and a CAE was assigned.
	ResultApproved Result = "A"
	// ResultRejected means an excluding validation failed; no CAE.
	ResultRejected Result = "R"
	// ResultPartiallyApproved means a non-excluding validation failed; the
	// CAE was still assigned, with observations attached.
	ResultPartiallyApproved Result = "P"
)

// ParseResult maps a wire code onto the Result set.
func ParseResult(code string) (Result, error) {
	switch Result(code) {
	case ResultApproved, ResultRejected, ResultPartiallyApproved:
		return Result(code), nil
	}
	return "", fmt.Errorf("%w: unknown result code %q", ErrProtocol, code)
}

// FEError is a request-level error: the service rejected the whole request
// before processing any invoice.
type FEError struct {
	Code int
	Msg  string
}

func (e FEError) String() string {
	return fmt.Sprintf("FEError(code=%d, msg=%s)", e.Code, e.Msg)
}

// Observation is an advisory note attached to an invoice that was still
// approved or partially approved. Never escalated to a failure.
type Observation struct {
	Code int
	Msg  string
}

// Tributo is one national/provincial tax entry on an invoice detail.
type Tributo struct {
	ID      int
	Desc    string // optional
	BaseImp decimal.Decimal
	Alic    decimal.Decimal
	Importe decimal.Decimal
}

// AlicIVA is one VAT-rate breakdown entry.
type AlicIVA struct {
	ID      int
	BaseImp decimal.Decimal
	Importe decimal.Decimal
}

// CbteAsoc references an associated invoice (credit/debit note linkage).
type CbteAsoc struct {
	Tipo    int
	PtoVta  int
	Nro     int64
	Cuit    string // optional
	CbteFch string // optional
}

// Opcional is an optional-data entry keyed by an AFIP-assigned id.
type Opcional struct {
	ID    string
	Valor string
}

// Comprador is one buyer with its ownership percentage.
type Comprador struct {
	DocTipo    int
	DocNro     string
	Porcentaje decimal.Decimal
}

// PeriodoAsoc is the associated billing period.
type PeriodoAsoc struct {
	FchDesde string
	FchHasta string
}

// Actividad is one declared economic activity.
type Actividad struct {
	ID int
}

// Invoice is one invoice to authorize (a FECAEDetRequest on the wire).
// CbteDesde and CbteHasta are either both set or both nil; when nil the
// workflow assigns the next sequential number and writes it back.
type Invoice struct {
	Concepto int
	DocTipo  int
	DocNro   string // optional

	CbteDesde *int64
	CbteHasta *int64
	CbteFch   string

	ImpTotal   decimal.Decimal
	ImpTotConc decimal.Decimal
	ImpNeto    decimal.Decimal
	ImpOpEx    decimal.Decimal
	ImpIVA     decimal.Decimal
	ImpTrib    *decimal.Decimal // optional

	FchServDesde string
	FchServHasta string
	FchVtoPago   string

	MonId    string
	MonCotiz decimal.Decimal

	Tributos    []Tributo
	IVA         []AlicIVA
	CbtesAsoc   []CbteAsoc
	Opcionales  []Opcional
	Compradores []Comprador
	PeriodoAsoc *PeriodoAsoc
	Actividades []Actividad
}

// InvoiceResult is the per-invoice outcome (a FECAEDetResponse on the wire).
// CAE and CAEFchVto are populated only when the invoice was not rejected.
type InvoiceResult struct {
	Concepto      int
	DocTipo       int
	DocNro        string
	CbteDesde     int64
	CbteHasta     int64
	CbteFch       string
	Resultado     Result
	CAE           string
	CAEFchVto     string
	Observaciones []Observation
}

// BatchResult is the full outcome of one authorization request. A non-empty
// Errors list means the service rejected the request before processing; the
// header fields and Details are then absent.
type BatchResult struct {
	Cuit       string
	PtoVta     int
	CbteTipo   int
	FchProceso string
	CantReg    int
	Resultado  Result
	Reproceso  string
	Details    []InvoiceResult
	Errors     []FEError
}

// LastAuthorized is the highest already-authorized invoice number for one
// (point of sale, invoice type) pair.
type LastAuthorized struct {
	PtoVta   int
	CbteTipo int
	CbteNro  int64
}

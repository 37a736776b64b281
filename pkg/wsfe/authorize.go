package wsfe

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gofactura/go-afip/pkg/xmldoc"
)

// AuthorizeBatch requests CAE authorization for a batch of invoices sharing
// one point of sale and one invoice type. Invoices without a number range get
// the next sequential numbers after the service's last authorized one,
// written back onto the Invoice values in input order; preset ranges are left
// untouched and do not advance the counter.
//
// The whole operation holds the per-(CUIT, ptoVta, cbteTipo) lock, so batches
// against the same sequence are serialized within this process. The service
// remains the final authority: a concurrent caller in another process can
// still win the race and cause a rejection.
//
// A request-level rejection comes back as BatchResult.Errors, not as an
// error; errors are reserved for transport, parsing and precondition
// failures.
func (c *Client) AuthorizeBatch(ctx context.Context, ptoVta, cbteTipo int, invoices []*Invoice) (*BatchResult, error) {
	if ptoVta <= 0 {
		return nil, fmt.Errorf("%w: ptoVta must be positive", ErrArgument)
	}
	if cbteTipo <= 0 {
		return nil, fmt.Errorf("%w: cbteTipo must be positive", ErrArgument)
	}
	if len(invoices) == 0 {
		return nil, fmt.Errorf("%w: at least one invoice is required", ErrArgument)
	}
	for i, inv := range invoices {
		if inv == nil {
			return nil, fmt.Errorf("%w: invoice %d is nil", ErrArgument, i)
		}
		if (inv.CbteDesde == nil) != (inv.CbteHasta == nil) {
			return nil, fmt.Errorf("%w: invoice %d sets only one of CbteDesde/CbteHasta", ErrArgument, i)
		}
	}

	lock := c.sequences.get(c.cuit, ptoVta, cbteTipo)
	lock.Lock()
	defer lock.Unlock()

	last, err := c.LastAuthorized(ctx, ptoVta, cbteTipo)
	if err != nil {
		return nil, err
	}
	assignNumbers(invoices, last.CbteNro)

	request, err := c.buildAuthorizeRequest(ptoVta, cbteTipo, invoices)
	if err != nil {
		return nil, err
	}

	response, err := c.call(ctx, "FECAESolicitar", request)
	if err != nil {
		return nil, err
	}
	return decodeBatch(response)
}

// assignNumbers fills unset number ranges with a running counter seeded by
// the last authorized number. Only auto-assigned invoices advance the
// counter; preset ranges do not perturb the sequence.
func assignNumbers(invoices []*Invoice, lastNumber int64) {
	counter := lastNumber
	for _, inv := range invoices {
		if inv.CbteDesde != nil {
			continue
		}
		counter++
		number := counter
		inv.CbteDesde = &number
		inv.CbteHasta = &number
	}
}

func (c *Client) buildAuthorizeRequest(ptoVta, cbteTipo int, invoices []*Invoice) (*xmldoc.Document, error) {
	doc, err := c.buildBaseRequest("FECAESolicitar")
	if err != nil {
		return nil, err
	}

	w := &docWriter{doc: doc}
	w.element("ar:FECAESolicitar", "ar:FeCAEReq")
	w.element("ar:FeCAEReq", "ar:FeCabReq")
	w.text("ar:FeCabReq", "ar:PtoVta", strconv.Itoa(ptoVta))
	w.text("ar:FeCabReq", "ar:CbteTipo", strconv.Itoa(cbteTipo))
	w.text("ar:FeCabReq", "ar:CantReg", strconv.Itoa(len(invoices)))
	w.element("ar:FeCAEReq", "ar:FeDetReq")
	if w.err != nil {
		return nil, w.err
	}

	// Each detail is built as an independent document and spliced in, so the
	// builder stays testable in isolation.
	for _, inv := range invoices {
		detail, err := buildDetail(inv)
		if err != nil {
			return nil, err
		}
		if err := doc.AddFragment("ar:FeDetReq", detail.String()); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// buildDetail emits one FECAEDetRequest. Mandatory fields are always written;
// optional scalars and nested lists only when present, with one child element
// per wrapped item.
func buildDetail(inv *Invoice) (*xmldoc.Document, error) {
	doc := xmldoc.New("ar:FECAEDetRequest", arBindings)
	w := &docWriter{doc: doc}

	w.text("", "ar:Concepto", strconv.Itoa(inv.Concepto))
	w.text("", "ar:DocTipo", strconv.Itoa(inv.DocTipo))
	w.text("", "ar:CbteDesde", strconv.FormatInt(*inv.CbteDesde, 10))
	w.text("", "ar:CbteHasta", strconv.FormatInt(*inv.CbteHasta, 10))
	w.text("", "ar:CbteFch", inv.CbteFch)
	w.text("", "ar:ImpTotal", inv.ImpTotal.String())
	w.text("", "ar:ImpTotConc", inv.ImpTotConc.String())
	w.text("", "ar:ImpNeto", inv.ImpNeto.String())
	w.text("", "ar:ImpOpEx", inv.ImpOpEx.String())
	w.text("", "ar:ImpIVA", inv.ImpIVA.String())
	w.text("", "ar:FchServDesde", inv.FchServDesde)
	w.text("", "ar:FchServHasta", inv.FchServHasta)
	w.text("", "ar:FchVtoPago", inv.FchVtoPago)
	w.text("", "ar:MonId", inv.MonId)
	w.text("", "ar:MonCotiz", inv.MonCotiz.String())

	if inv.ImpTrib != nil {
		w.text("", "ar:ImpTrib", inv.ImpTrib.String())
	}
	if inv.DocNro != "" {
		w.text("", "ar:DocNro", inv.DocNro)
	}

	if len(inv.Tributos) > 0 {
		w.element("", "ar:Tributos")
		for _, t := range inv.Tributos {
			item := xmldoc.New("ar:Tributo", arBindings)
			iw := &docWriter{doc: item}
			iw.text("", "ar:Id", strconv.Itoa(t.ID))
			if t.Desc != "" {
				iw.text("", "ar:Desc", t.Desc)
			}
			iw.text("", "ar:BaseImp", t.BaseImp.String())
			iw.text("", "ar:Alic", t.Alic.String())
			iw.text("", "ar:Importe", t.Importe.String())
			if iw.err != nil {
				return nil, iw.err
			}
			w.fragment("ar:Tributos", item.String())
		}
	}

	if len(inv.IVA) > 0 {
		w.element("", "ar:Iva")
		for _, a := range inv.IVA {
			item := xmldoc.New("ar:AlicIva", arBindings)
			iw := &docWriter{doc: item}
			iw.text("", "ar:Id", strconv.Itoa(a.ID))
			iw.text("", "ar:BaseImp", a.BaseImp.String())
			iw.text("", "ar:Importe", a.Importe.String())
			if iw.err != nil {
				return nil, iw.err
			}
			w.fragment("ar:Iva", item.String())
		}
	}

	if len(inv.CbtesAsoc) > 0 {
		w.element("", "ar:CbtesAsoc")
		for _, asoc := range inv.CbtesAsoc {
			item := xmldoc.New("ar:CbteAsoc", arBindings)
			iw := &docWriter{doc: item}
			iw.text("", "ar:Tipo", strconv.Itoa(asoc.Tipo))
			iw.text("", "ar:PtoVta", strconv.Itoa(asoc.PtoVta))
			iw.text("", "ar:Nro", strconv.FormatInt(asoc.Nro, 10))
			if asoc.Cuit != "" {
				iw.text("", "ar:Cuit", asoc.Cuit)
			}
			if asoc.CbteFch != "" {
				iw.text("", "ar:CbteFch", asoc.CbteFch)
			}
			if iw.err != nil {
				return nil, iw.err
			}
			w.fragment("ar:CbtesAsoc", item.String())
		}
	}

	if len(inv.Opcionales) > 0 {
		w.element("", "ar:Opcionales")
		for _, opt := range inv.Opcionales {
			item := xmldoc.New("ar:Opcional", arBindings)
			iw := &docWriter{doc: item}
			iw.text("", "ar:Id", opt.ID)
			iw.text("", "ar:Valor", opt.Valor)
			if iw.err != nil {
				return nil, iw.err
			}
			w.fragment("ar:Opcionales", item.String())
		}
	}

	if len(inv.Compradores) > 0 {
		w.element("", "ar:Compradores")
		for _, buyer := range inv.Compradores {
			item := xmldoc.New("ar:Comprador", arBindings)
			iw := &docWriter{doc: item}
			iw.text("", "ar:DocTipo", strconv.Itoa(buyer.DocTipo))
			iw.text("", "ar:DocNro", buyer.DocNro)
			iw.text("", "ar:Porcentaje", buyer.Porcentaje.String())
			if iw.err != nil {
				return nil, iw.err
			}
			w.fragment("ar:Compradores", item.String())
		}
	}

	if inv.PeriodoAsoc != nil {
		w.element("", "ar:PeriodoAsoc")
		w.text("ar:PeriodoAsoc", "ar:FchDesde", inv.PeriodoAsoc.FchDesde)
		w.text("ar:PeriodoAsoc", "ar:FchHasta", inv.PeriodoAsoc.FchHasta)
	}

	if len(inv.Actividades) > 0 {
		w.element("", "ar:Actividades")
		for _, act := range inv.Actividades {
			item := xmldoc.New("ar:Actividad", arBindings)
			iw := &docWriter{doc: item}
			iw.text("", "ar:Id", strconv.Itoa(act.ID))
			if iw.err != nil {
				return nil, iw.err
			}
			w.fragment("ar:Actividades", item.String())
		}
	}

	if w.err != nil {
		return nil, w.err
	}
	return doc, nil
}

// decodeBatch decodes the FECAESolicitar response. Request-level errors are
// data on the result, not a failure; a malformed response is.
func decodeBatch(response *xmldoc.Document) (*BatchResult, error) {
	pairs, err := response.CodeMessages("ar:Errors", "ar:Err")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	result := &BatchResult{}
	if len(pairs) > 0 {
		result.Errors = toFEErrors(pairs)
	}

	if !response.Has("ar:FeCabResp") {
		return result, nil
	}

	if result.Cuit, err = requireText(response, "ar:FeCabResp/ar:Cuit"); err != nil {
		return nil, err
	}
	if result.PtoVta, err = requireInt(response, "ar:FeCabResp/ar:PtoVta"); err != nil {
		return nil, err
	}
	if result.CbteTipo, err = requireInt(response, "ar:FeCabResp/ar:CbteTipo"); err != nil {
		return nil, err
	}
	if result.FchProceso, err = requireText(response, "ar:FeCabResp/ar:FchProceso"); err != nil {
		return nil, err
	}
	if result.CantReg, err = requireInt(response, "ar:FeCabResp/ar:CantReg"); err != nil {
		return nil, err
	}
	rawResult, err := requireText(response, "ar:FeCabResp/ar:Resultado")
	if err != nil {
		return nil, err
	}
	if result.Resultado, err = ParseResult(rawResult); err != nil {
		return nil, err
	}
	result.Reproceso = optionalText(response, "ar:FeCabResp/ar:Reproceso")

	count := response.Count("ar:FECAEDetResponse")
	if count != result.CantReg {
		return nil, fmt.Errorf("%w: header declares %d details, response carries %d",
			ErrProtocol, result.CantReg, count)
	}

	result.Details = make([]InvoiceResult, 0, count)
	for i := 0; i < count; i++ {
		sub, err := response.Extract("ar:FECAEDetResponse", i)
		if err != nil {
			return nil, err
		}
		detail, err := decodeDetail(sub)
		if err != nil {
			return nil, err
		}
		result.Details = append(result.Details, *detail)
	}
	return result, nil
}

// decodeDetail decodes one FECAEDetResponse extracted as its own document.
func decodeDetail(sub *xmldoc.Document) (*InvoiceResult, error) {
	detail := &InvoiceResult{}
	var err error

	if detail.Concepto, err = requireInt(sub, "ar:Concepto"); err != nil {
		return nil, err
	}
	if detail.DocTipo, err = requireInt(sub, "ar:DocTipo"); err != nil {
		return nil, err
	}
	detail.DocNro = optionalText(sub, "ar:DocNro")
	if detail.CbteDesde, err = requireInt64(sub, "ar:CbteDesde"); err != nil {
		return nil, err
	}
	if detail.CbteHasta, err = requireInt64(sub, "ar:CbteHasta"); err != nil {
		return nil, err
	}
	detail.CbteFch = optionalText(sub, "ar:CbteFch")

	rawResult, err := requireText(sub, "ar:Resultado")
	if err != nil {
		return nil, err
	}
	if detail.Resultado, err = ParseResult(rawResult); err != nil {
		return nil, err
	}

	if detail.Resultado != ResultRejected {
		detail.CAE = optionalText(sub, "ar:CAE")
		detail.CAEFchVto = optionalText(sub, "ar:CAEFchVto")
	}

	pairs, err := sub.CodeMessages("ar:Observaciones", "ar:Obs")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if len(pairs) > 0 {
		detail.Observaciones = toObservations(pairs)
	}
	return detail, nil
}

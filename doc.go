/*
Package goafip implements a client for AFIP's electronic invoicing web
services: WSAA (authentication and authorization) and WSFEv1 (domestic
electronic invoices, "factura electrónica").

# Overview

go-afip covers the full authorization flow: it builds and CMS-signs the
login ticket request, exchanges it for an access ticket, and uses the ticket
to query invoice sequences and request CAE authorization codes for batches
of invoices.

# Specifications Implemented

  - WSAA: https://www.afip.gob.ar/ws/WSAA/Especificacion_Tecnica_WSAA_1.2.2.pdf
  - WSFEv1: https://www.afip.gob.ar/fe/ayuda/documentos/manual-desarrollador-ARCA-COMPG-v4-0.pdf

# Package Structure

The library is organized into the following packages:

	github.com/gofactura/go-afip/pkg/wsaa      - Access ticket acquisition (login)
	github.com/gofactura/go-afip/pkg/wsfe      - Invoice authorization (WSFEv1)
	github.com/gofactura/go-afip/pkg/cms       - CMS/PKCS#7 detached signing of login requests
	github.com/gofactura/go-afip/pkg/xmldoc    - Namespace-aware XML document model
	github.com/gofactura/go-afip/pkg/transport - HTTPS transport with TLS 1.2/1.3

# Quick Start

To authorize an invoice:

	import (
	    "github.com/gofactura/go-afip/pkg/wsaa"
	    "github.com/gofactura/go-afip/pkg/wsfe"
	)

	// Obtain an access ticket (testing selects the homologation endpoints)
	login, _ := wsaa.NewClient(certPEM, keyPEM, wsaa.ServiceWSFE, true)
	ticket, err := login.LoginTicket(ctx)

	// Authorize a batch; unset invoice numbers are assigned automatically
	billing, _ := wsfe.NewClient(ticket, "20123456789", true)
	result, err := billing.AuthorizeBatch(ctx, 1, 11, []*wsfe.Invoice{invoice})

Tickets are valid for roughly ten minutes and should be reused across calls;
the wsaa client does not cache them.

# Security

Login requests are signed as CMS SignedData (SHA-256) with the X.509
certificate AFIP issued for the taxpayer. All traffic runs over TLS 1.2+.
*/
package goafip

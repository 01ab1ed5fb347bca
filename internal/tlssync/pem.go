package tlssync

import (
	"crypto/x509"
	"encoding/pem"

	"github.com/rs/zerolog"
)

// parseCertificates extracts every CERTIFICATE block from PEM data. Material
// that is not PEM at all yields an empty slice, not an error: registry TLS
// material is opaque to us and gets written to disk either way.
func parseCertificates(data []byte) []*x509.Certificate {
	var certs []*x509.Certificate
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			continue
		}
		certs = append(certs, cert)
	}
	return certs
}

// describeCertificate debug-logs the subject and validity window of freshly
// written CA or client certificate material when it parses as PEM.
func describeCertificate(log *zerolog.Logger, path string, data []byte) {
	certs := parseCertificates(data)
	if len(certs) == 0 {
		log.Debug().Str("path", path).Msg("Written TLS material is not PEM-encoded certificate data")
		return
	}
	leaf := certs[0]
	log.Debug().
		Str("path", path).
		Str("subject", leaf.Subject.String()).
		Time("not_after", leaf.NotAfter).
		Msg("Wrote TLS certificate material")
}

// Package provider contains the vendor adapters. Each adapter implements
// port.Plugin for one ProviderKind; the mapping layers are deliberately
// thin. Construction dispatches on the kind tag.
package provider

import (
	"net/http"

	"github.com/farelink/flightgw/internal/domain"
	"github.com/farelink/flightgw/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("provider")

// New builds the adapter for a configured provider.
func New(cfg domain.ProviderConfig, httpClient *http.Client, logger *zap.Logger) (port.Plugin, error) {
	switch cfg.Kind {
	case domain.KindAmadeus:
		return newAmadeus(cfg, httpClient, logger), nil
	case domain.KindSabre:
		return newSabre(cfg, httpClient, logger), nil
	case domain.KindMockAir:
		return newMockAir(cfg), nil
	default:
		return nil, &domain.ErrValidation{Field: "providerKind", Message: "unknown provider kind: " + string(cfg.Kind)}
	}
}

// classifyStatus maps a vendor HTTP status to the error taxonomy.
// Auth failures are configuration errors; everything else a vendor can
// throw at us mid-flight is treated as transient.
func classifyStatus(providerName string, status int, err error) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &domain.ErrConfiguration{Provider: providerName, Reason: "vendor rejected credentials"}
	default:
		return &domain.ErrTransient{Provider: providerName, Err: err}
	}
}

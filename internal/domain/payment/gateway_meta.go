package payment

import (
	"fmt"

	"github.com/tutorly/service-learning/pkg/domain"
)

// MetaKey is one of the recognized gateway metadata keys.
type MetaKey string

const (
	MetaCardBrand      MetaKey = "card_brand"
	MetaCardLast4      MetaKey = "card_last4"
	MetaReceiptURL     MetaKey = "receipt_url"
	MetaProcessorCode  MetaKey = "processor_code"
	MetaProcessorName  MetaKey = "processor_name"
	MetaAuthorization  MetaKey = "authorization_code"
	MetaRiskScore      MetaKey = "risk_score"
	MetaFailureCode    MetaKey = "failure_code"
	MetaFailureMessage MetaKey = "failure_message"
)

const maxMetaValueLen = 512

var knownMetaKeys = map[MetaKey]struct{}{
	MetaCardBrand:      {},
	MetaCardLast4:      {},
	MetaReceiptURL:     {},
	MetaProcessorCode:  {},
	MetaProcessorName:  {},
	MetaAuthorization:  {},
	MetaRiskScore:      {},
	MetaFailureCode:    {},
	MetaFailureMessage: {},
}

// GatewayMeta is the bounded key/value detail a gateway returns with a charge.
type GatewayMeta map[MetaKey]string

// ParseGatewayMeta validates raw metadata. Unknown keys and oversized values are rejected.
func ParseGatewayMeta(raw map[string]string) (GatewayMeta, error) {
	meta := make(GatewayMeta, len(raw))
	fields := map[string]string{}
	for k, v := range raw {
		key := MetaKey(k)
		if _, ok := knownMetaKeys[key]; !ok {
			fields["gateway_meta."+k] = "unrecognized key"
			continue
		}
		if len(v) > maxMetaValueLen {
			fields["gateway_meta."+k] = fmt.Sprintf("longer than %d characters", maxMetaValueLen)
			continue
		}
		meta[key] = v
	}
	if len(fields) > 0 {
		return nil, domain.NewValidationErrors(fields)
	}
	return meta, nil
}

// Strings converts the metadata to a plain map for serialization.
func (m GatewayMeta) Strings() map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

func (m GatewayMeta) Clone() GatewayMeta {
	out := make(GatewayMeta, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

package enums

import "fmt"

// PaymentProvider names who settled a payment.
type PaymentProvider string

const (
	PaymentProviderSquare PaymentProvider = "square"
	PaymentProviderStripe PaymentProvider = "stripe"
	PaymentProviderLocal  PaymentProvider = "local"
	PaymentProviderMock   PaymentProvider = "mock"
	PaymentProviderAdmin  PaymentProvider = "admin"
)

var validPaymentProviders = []PaymentProvider{
	PaymentProviderSquare,
	PaymentProviderStripe,
	PaymentProviderLocal,
	PaymentProviderMock,
	PaymentProviderAdmin,
}

func (p PaymentProvider) String() string {
	return string(p)
}

func (p PaymentProvider) IsValid() bool {
	for _, candidate := range validPaymentProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentProvider converts raw input into a PaymentProvider.
func ParsePaymentProvider(value string) (PaymentProvider, error) {
	for _, candidate := range validPaymentProviders {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment provider %q", value)
}

package models

// AddressMetadata caches resolved address classification. IsContract is nil
// until the fetch-address-type consumer has resolved it.
type AddressMetadata struct {
	Address    string `json:"address"`
	IsContract *bool  `json:"isContract,omitempty"`
}

// IsResolved reports whether the contract classification is known
func (m *AddressMetadata) IsResolved() bool {
	return m != nil && m.IsContract != nil
}

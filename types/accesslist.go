package types

// AccessListEntry pre-declares an address and the storage slots within it
// that a transaction intends to touch, per EIP-2930. It is meaningful
// only on EIP-1559/EIP-4844 transactions (§3).
type AccessListEntry struct {
	Address      Address `json:"address"`
	StorageKeys  []Hash  `json:"storageKeys"`
}

// AccessList is an ordered list of access-list entries. The transaction
// encoders in package tx pass it through Normalize, so a nil and an
// empty AccessList produce the same RLP (an empty list). AccessList has
// no JSON methods of its own: encoding/json renders a nil list as null
// and an empty one as [].
type AccessList []AccessListEntry

// Normalize returns a non-nil, possibly-empty copy, so callers never have
// to special-case nil vs empty when building the wire payload.
func (l AccessList) Normalize() AccessList {
	if l == nil {
		return AccessList{}
	}
	return l
}

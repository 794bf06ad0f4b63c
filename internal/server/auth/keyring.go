package auth

import (
	"errors"
	"fmt"
)

// Key is a symmetric HS256 key identified by its kid header value.
type Key struct {
	ID     string
	Secret []byte
}

// KeyRing holds the key new tokens are signed with and the ordered set of
// keys accepted on verification. The signing key is always accepted. Extra
// keys let tokens minted under a previous key stay valid during rollover.
type KeyRing struct {
	signing Key
	order   []string
	byID    map[string][]byte
}

// NewKeyRing validates and builds a key ring.
func NewKeyRing(signing Key, verification ...Key) (*KeyRing, error) {
	if signing.ID == "" || len(signing.Secret) == 0 {
		return nil, errors.New("signing key needs an id and a secret")
	}

	kr := &KeyRing{
		signing: signing,
		byID:    map[string][]byte{signing.ID: signing.Secret},
		order:   []string{signing.ID},
	}
	for _, k := range verification {
		if k.ID == "" || len(k.Secret) == 0 {
			return nil, errors.New("verification key needs an id and a secret")
		}
		if _, dup := kr.byID[k.ID]; dup {
			return nil, fmt.Errorf("duplicate key id %q", k.ID)
		}
		kr.byID[k.ID] = k.Secret
		kr.order = append(kr.order, k.ID)
	}
	return kr, nil
}

// Signing returns the active signing key.
func (k *KeyRing) Signing() Key { return k.signing }

// Lookup returns the verification secret for kid.
func (k *KeyRing) Lookup(kid string) ([]byte, bool) {
	s, ok := k.byID[kid]
	return s, ok
}

// IDs lists accepted key ids, signing key first.
func (k *KeyRing) IDs() []string {
	return append([]string(nil), k.order...)
}

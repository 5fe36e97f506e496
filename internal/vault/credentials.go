package vault

import "streamhostd/pkg/types"

// Store keys for the single service credential pair.
const (
	keyUsername = "service.username"
	keyPassword = "service.password"
)

// SaveCredentials persists the service credential pair, replacing any
// previous pair. The vault holds at most one pair at a time.
func (v *Vault) SaveCredentials(creds types.Credentials) error {
	if err := v.Save(keyUsername, creds.Username); err != nil {
		return err
	}
	return v.Save(keyPassword, creds.Password)
}

// LoadCredentials returns the stored pair; ok is false when none exists.
func (v *Vault) LoadCredentials() (creds types.Credentials, ok bool, err error) {
	user, okU, err := v.Load(keyUsername)
	if err != nil {
		return types.Credentials{}, false, err
	}
	pass, okP, err := v.Load(keyPassword)
	if err != nil {
		return types.Credentials{}, false, err
	}
	if !okU || !okP {
		return types.Credentials{}, false, nil
	}
	return types.Credentials{Username: user, Password: pass}, true, nil
}

// HasCredentials reports whether a complete pair is stored.
func (v *Vault) HasCredentials() (bool, error) {
	okU, err := v.Has(keyUsername)
	if err != nil {
		return false, err
	}
	okP, err := v.Has(keyPassword)
	if err != nil {
		return false, err
	}
	return okU && okP, nil
}

// DeleteCredentials removes the stored pair. Missing entries are a no-op.
func (v *Vault) DeleteCredentials() error {
	if err := v.Delete(keyUsername); err != nil {
		return err
	}
	return v.Delete(keyPassword)
}

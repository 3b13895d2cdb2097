package models

import "time"

// Account is one external identity with its ordered addon list.
// AuthKey is the credential for the third-party addon service; it is
// stored encrypted at rest and only decrypted while the vault is unlocked.
type Account struct {
	ID       string        `json:"id"`
	Email    string        `json:"email,omitempty"`
	AuthKey  string        `json:"authKey"`
	Addons   []AddonRecord `json:"addons"`
	LastSync time.Time     `json:"lastSync,omitempty"`
}

// FindAddon returns the index of the first addon matching url, or -1.
func (a *Account) FindAddon(url string) int {
	for i, addon := range a.Addons {
		if SameTransportURL(addon.TransportURL, url) {
			return i
		}
	}
	return -1
}

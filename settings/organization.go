package settings

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
)

// OrganizationConfig is the foundation profile printed on receipts and emails.
type OrganizationConfig struct {
	Name               string   `json:"name"`
	LegalName          string   `json:"legalName"`
	Tagline            string   `json:"tagline"`
	Slogan             string   `json:"slogan"`
	RegistrationNumber string   `json:"registrationNumber"`
	TaxReference       string   `json:"taxReference"`
	Address            []string `json:"address"`
	Phone              string   `json:"phone"`
	Email              string   `json:"email"`
	Website            string   `json:"website"`
	Logo               string   `json:"logo"`
}

// DefaultOrganization is used whenever the settings row is missing or broken.
func DefaultOrganization() OrganizationConfig {
	return OrganizationConfig{
		Name:               "YIP Foundation",
		LegalName:          "Yayasan Insan Prihatin",
		Tagline:            "Empowering communities through education",
		Slogan:             "Bersama Membina Harapan",
		RegistrationNumber: "PPM-001-10-01012020",
		TaxReference:       "",
		Address: []string{
			"Level 5, Menara YIP",
			"Jalan Tun Razak",
			"50400 Kuala Lumpur, Malaysia",
		},
		Phone:   "+60 3-2000 0000",
		Email:   "hello@yip.org.my",
		Website: "https://yip.org.my",
		Logo:    "/images/logo.png",
	}
}

// LoadOrganization overlays the stored organizationConfig JSON onto the
// defaults. Keys missing from the stored value keep their default. The
// defaults are returned together with any decode error.
func LoadOrganization(p Provider) (OrganizationConfig, error) {
	org := DefaultOrganization()
	raw, ok, err := p.Get(KeyOrganizationConfig)
	if err != nil {
		return org, fmt.Errorf("read organization config: %w", err)
	}
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return org, nil
	}
	stored := org
	if err := json.Unmarshal(raw, &stored); err != nil {
		return org, fmt.Errorf("decode organization config: %w", err)
	}
	return stored, nil
}

// Validate checks the fields the admin form must not leave broken.
func (o OrganizationConfig) Validate() error {
	if strings.TrimSpace(o.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if o.Email != "" {
		if _, err := mail.ParseAddress(o.Email); err != nil {
			return fmt.Errorf("invalid email %q", o.Email)
		}
	}
	return nil
}

// DisplayLegalName prefers the legal name, falling back to the trading name.
func (o OrganizationConfig) DisplayLegalName() string {
	if o.LegalName != "" {
		return o.LegalName
	}
	return o.Name
}

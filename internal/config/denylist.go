package config

// DefaultSkipURLPrefixes lists browser-internal URL schemes that are never
// logged.
func DefaultSkipURLPrefixes() []string {
	return []string{
		"chrome://",
		"chrome-extension://",
		"edge://",
		"about:blank",
		"moz-extension://",
		"safari-extension://",
	}
}

// SensitiveDomains is the opt-in list merged into the excluded sites when
// capture.exclude_sensitive_domains is set. Subdomains match too.
func SensitiveDomains() []string {
	return []string{
		// Banking & payments
		"chase.com",
		"bankofamerica.com",
		"wellsfargo.com",
		"capitalone.com",
		"schwab.com",
		"fidelity.com",
		"vanguard.com",
		"paypal.com",
		"venmo.com",

		// Password managers
		"1password.com",
		"lastpass.com",
		"bitwarden.com",
		"dashlane.com",

		// Sign-in pages
		"accounts.google.com",
		"login.microsoftonline.com",
		"login.live.com",
		"okta.com",

		// Health
		"mychart.com",
		"kp.org",
		"healthcare.gov",

		// Government & tax
		"irs.gov",
		"ssa.gov",
		"login.gov",
		"id.me",
	}
}

// EffectiveExcludedSites returns the configured excluded sites plus the
// sensitive list when enabled, without duplicates.
func (c *Config) EffectiveExcludedSites() []string {
	out := make([]string, 0, len(c.Capture.ExcludedSites))
	seen := make(map[string]bool)
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, s := range c.Capture.ExcludedSites {
		add(s)
	}
	if c.Capture.ExcludeSensitiveDomains {
		for _, s := range SensitiveDomains() {
			add(s)
		}
	}
	return out
}

package config

// DefaultAllowlistDomains returns sites whose redirects are part of sign-in,
// payment and account flows. Purging them would log users out or break
// checkouts, so they are never purged even when they bounce.
func DefaultAllowlistDomains() []string {
	return []string{
		// Identity providers & SSO
		"accounts.google.com",
		"login.microsoftonline.com",
		"login.live.com",
		"appleid.apple.com",
		"okta.com",
		"auth0.com",
		"onelogin.com",
		"pingidentity.com",
		"duosecurity.com",

		// Government identity
		"login.gov",
		"id.me",

		// Payments & 3-D Secure
		"paypal.com",
		"stripe.com",
		"adyen.com",
		"klarna.com",
		"3dsecure.io",
		"cardinalcommerce.com",
		"arcot.com",

		// Banking & Financial
		"chase.com",
		"bankofamerica.com",
		"wellsfargo.com",
		"capitalone.com",
		"schwab.com",
		"fidelity.com",

		// Password Managers
		"1password.com",
		"lastpass.com",
		"bitwarden.com",

		// Healthcare portals
		"mychart.com",
		"epic.com",
	}
}

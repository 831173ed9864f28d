package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/bounceguard/internal/model"
)

func TestNewExemptions_DomainsReducedToSite(t *testing.T) {
	e, err := NewExemptions([]string{"https://login.Example.co.uk/path", "bank.com."}, nil)
	require.NoError(t, err)

	assert.True(t, e.IsExempt("example.co.uk"))
	assert.True(t, e.IsExempt("bank.com"))
	assert.False(t, e.IsExempt("other.com"))
	assert.Equal(t, 2, e.Len())
}

func TestNewExemptions_Regex(t *testing.T) {
	e, err := NewExemptions(nil, []string{`^sso\d+\.net$`})
	require.NoError(t, err)

	assert.True(t, e.IsExempt("sso42.net"))
	assert.False(t, e.IsExempt("sso.net"))
}

func TestNewExemptions_InvalidInput(t *testing.T) {
	_, err := NewExemptions(nil, []string{"("})
	assert.Error(t, err)

	_, err = NewExemptions([]string{""}, nil)
	assert.ErrorIs(t, err, model.ErrEmptyHost)
}

func TestExemptions_NilNeverExempts(t *testing.T) {
	var e *Exemptions
	assert.False(t, e.IsExempt("a.com"))
}

func TestLoadExemptions_Defaults(t *testing.T) {
	db := openTestDB(t)

	e, err := LoadExemptions(context.Background(), db)
	require.NoError(t, err)

	assert.True(t, e.IsExempt("okta.com"))
	assert.True(t, e.IsExempt("paypal.com"))
	assert.True(t, e.IsExempt("okta-emea.com"))
	assert.False(t, e.IsExempt("tracker.example"))
}

func TestAddExemption_Persists(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, AddExemption(ctx, db, "domain", "https://www.mybank.com/", "bank"))
	require.NoError(t, AddExemption(ctx, db, "regex", `^pay\..+$`, ""))
	assert.Error(t, AddExemption(ctx, db, "regex", "[", ""))
	assert.Error(t, AddExemption(ctx, db, "glob", "*", ""))

	e, err := LoadExemptions(ctx, db)
	require.NoError(t, err)
	assert.True(t, e.IsExempt("mybank.com"))
	assert.True(t, e.IsExempt("pay.example"))
}

func TestExemptions_Merge(t *testing.T) {
	a, err := NewExemptions([]string{"a.com"}, nil)
	require.NoError(t, err)
	b, err := NewExemptions([]string{"b.com"}, []string{`^c\.`})
	require.NoError(t, err)

	a.Merge(b)
	a.Merge(a)
	a.Merge(nil)

	assert.True(t, a.IsExempt("a.com"))
	assert.True(t, a.IsExempt("b.com"))
	assert.True(t, a.IsExempt("c.org"))
	assert.Equal(t, 3, a.Len())
}

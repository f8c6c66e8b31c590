package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDomainSet(t *testing.T) {
	t.Run("exact match", func(t *testing.T) {
		set := NewDomainSet([]string{"Example.org"})
		require.True(t, set.Contains("example.org"))
		require.True(t, set.Contains("EXAMPLE.ORG."))
		require.False(t, set.Contains("sub.example.org"), "exact entries do not cover subdomains")
	})

	t.Run("wildcard suffix", func(t *testing.T) {
		set := NewDomainSet([]string{"*.ru", ".example.net", "*.ru"})
		require.Equal(t, 2, set.Len())
		cases := []struct {
			host string
			want bool
		}{
			{"example.ru", true},
			{"sub.domain.ru", true},
			{"ru", true},
			{"example.net", true},
			{"cdn.example.net", true},
			{"badexample.net", false},
			{"example.com", false},
		}
		for _, tc := range cases {
			require.Equalf(t, tc.want, set.Contains(tc.host), "host %q", tc.host)
		}
	})

	t.Run("nil set", func(t *testing.T) {
		var set *DomainSet
		require.False(t, set.Contains("anything"))
		require.False(t, set.MatchesURL("https://anything.com/"))
		require.Zero(t, set.Len())
	})

	t.Run("blank patterns ignored", func(t *testing.T) {
		set := NewDomainSet([]string{"", "  ", "."})
		require.Zero(t, set.Len())
		require.False(t, set.Contains(""))
	})
}

func TestDomainSetMatchesURL(t *testing.T) {
	t.Parallel()

	set := NewDomainSet([]string{"stub.com", "ads.example"})
	tests := []struct {
		url  string
		want bool
	}{
		{"https://stub.com/x", true},
		{"http://STUB.com:8080/x?y=z", true},
		{"https://ads.example/y", true},
		{"https://child.com/z", false},
		{"not a url", false},
		{"/root/relative", false},
		{"mailto:someone@stub.com", false},
		{"http://[::1", false},
		{"https://127.0.0.1/", false},
		{"", false},
	}
	for _, tc := range tests {
		require.Equalf(t, tc.want, set.MatchesURL(tc.url), "url %q", tc.url)
	}
}

func TestDomainOf(t *testing.T) {
	t.Parallel()

	got, ok := DomainOf("https://WWW.Example.com:443/path")
	require.True(t, ok)
	require.Equal(t, "www.example.com", got)

	for _, raw := range []string{"/relative", "not a url", "https://[::1]/", "http://10.0.0.1/", "%zz"} {
		_, ok := DomainOf(raw)
		require.Falsef(t, ok, "expected no domain for %q", raw)
	}
}

func TestRegistrableDomain(t *testing.T) {
	t.Parallel()

	require.Equal(t, "example.co.uk", RegistrableDomain("https://a.b.example.co.uk/x"))
	require.Equal(t, "example.com", RegistrableDomain("https://www.example.com/"))
	require.Equal(t, "unknown", RegistrableDomain("/relative"))
}

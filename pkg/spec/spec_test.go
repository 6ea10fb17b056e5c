package spec

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStoreKind(t *testing.T) {
	tests := []struct {
		in      string
		want    StoreKind
		wantErr bool
	}{
		{"nss", NssStore, false},
		{"NSS", NssStore, false},
		{"openssl", FilePairStore, false},
		{"file", FilePairStore, false},
		{" filepair ", FilePairStore, false},
		{"pem", FilePairStore, false},
		{"foo", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStoreKind(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedStoreKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_NSS(t *testing.T) {
	s, err := New(Params{
		Principal: "HTTP/www.example.com",
		Kind:      "nss",
		DBName:    "alias",
		Nickname:  "Server-Cert",
		Subject:   "www.example.com",
		Hostname:  "www.example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, NssStore, s.Kind())
	assert.Equal(t, "HTTP_www.example.com", s.NormalizedID())
	assert.Equal(t, "/etc/pki/alias", s.DBPath())
	assert.Equal(t, "/etc/pki/alias/pwdfile.txt", s.PasswordFile())
	assert.False(t, s.HasExplicitPasswordFile())
	assert.Equal(t, "/etc/pki/alias/requested", s.MarkerDir())
	assert.Equal(t, "/etc/pki/alias/requested/HTTP_www.example.com", s.SemaphorePath())
	assert.Equal(t, "CN=www.example.com", s.SubjectDN())
	assert.Equal(t, 0, s.OwnerID())
	assert.Equal(t, 0, s.GroupID())
}

func TestNew_FilePairDefaults(t *testing.T) {
	s, err := New(Params{
		Principal: "HTTP/h.example.com",
		Kind:      "openssl",
		Key:       "/etc/pki/tls/private/h.key",
		Cert:      "/etc/pki/tls/certs/h.crt",
		OwnerID:   48,
		GroupID:   48,
	})
	require.NoError(t, err)

	assert.Equal(t, FilePairStore, s.Kind())
	assert.Equal(t, DefaultFilePairDBName, s.DBName())
	assert.Equal(t, filepath.Join("/etc/pki", DefaultFilePairDBName, StagingDirName, "HTTP_h.example.com"), s.StagingDir())
	assert.Equal(t, "", s.SubjectDN())
	assert.Equal(t, 48, s.OwnerID())
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		errIs  error
	}{
		{
			name:   "unsupported kind",
			params: Params{Principal: "HTTP/x", Kind: "foo", DBName: "alias", Nickname: "n"},
			errIs:  ErrUnsupportedStoreKind,
		},
		{
			name:   "missing principal",
			params: Params{Kind: "nss", DBName: "alias", Nickname: "n"},
			errIs:  ErrInvalidSpec,
		},
		{
			name:   "nss without dbname",
			params: Params{Principal: "HTTP/x", Kind: "nss", Nickname: "n"},
			errIs:  ErrInvalidSpec,
		},
		{
			name:   "nss without nickname",
			params: Params{Principal: "HTTP/x", Kind: "nss", DBName: "alias"},
			errIs:  ErrInvalidSpec,
		},
		{
			name:   "nss with key path",
			params: Params{Principal: "HTTP/x", Kind: "nss", DBName: "alias", Nickname: "n", Key: "/k"},
			errIs:  ErrInvalidSpec,
		},
		{
			name:   "file pair without key",
			params: Params{Principal: "HTTP/x", Kind: "openssl", Cert: "/c"},
			errIs:  ErrInvalidSpec,
		},
		{
			name:   "file pair relative cert",
			params: Params{Principal: "HTTP/x", Kind: "openssl", Key: "/k", Cert: "c.crt"},
			errIs:  ErrInvalidSpec,
		},
		{
			name:   "file pair same key and cert",
			params: Params{Principal: "HTTP/x", Kind: "openssl", Key: "/a/k", Cert: "/a/./k"},
			errIs:  ErrInvalidSpec,
		},
		{
			name:   "dbname with separator",
			params: Params{Principal: "HTTP/x", Kind: "nss", DBName: "../etc", Nickname: "n"},
			errIs:  ErrInvalidSpec,
		},
		{
			name:   "relative basedir",
			params: Params{Principal: "HTTP/x", Kind: "nss", DBName: "alias", Nickname: "n", Basedir: "pki"},
			errIs:  ErrInvalidSpec,
		},
		{
			name:   "negative owner",
			params: Params{Principal: "HTTP/x", Kind: "nss", DBName: "alias", Nickname: "n", OwnerID: -1},
			errIs:  ErrInvalidSpec,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.params)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.errIs), "got %v", err)
			assert.True(t, s.IsZero())
		})
	}
}

func TestNew_ReportsEveryProblem(t *testing.T) {
	_, err := New(Params{Kind: "nss"})
	require.ErrorIs(t, err, ErrInvalidSpec)
	assert.Contains(t, err.Error(), "principal is required")
	assert.Contains(t, err.Error(), "dbname is required")
	assert.Contains(t, err.Error(), "nickname is required")
}

func TestNormalizePrincipal(t *testing.T) {
	tests := map[string]string{
		"HTTP/www.example.com":           "HTTP_www.example.com",
		"HTTP/h@REALM":                   "HTTP_h@REALM",
		"host/a.example.com@EXAMPLE.COM": "host_a.example.com@EXAMPLE.COM",
		"plain":                          "plain",
		"..":                             "_.",
		".":                              "_",
		".hidden":                        "_hidden",
		"ldap/x:389":                     "ldap_x:389",
		"HTTP/münchen.example.com":       "HTTP_münchen.example.com",
		"a/b/c":                          "a_b_c",
		"nul\x00byte":                     "nul_byte",
		"dash-and_underscore.ok":         "dash-and_underscore.ok",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePrincipal(in), in)
	}
}

func TestSubjectDN(t *testing.T) {
	s, err := New(Params{Principal: "p", Kind: "nss", DBName: "d", Nickname: "n", Subject: "cn=already.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "cn=already.example.com", s.SubjectDN())
}

func TestExplicitPasswordFile(t *testing.T) {
	s, err := New(Params{Principal: "p", Kind: "nss", DBName: "d", Nickname: "n", PasswordFile: "/run/secrets/pin"})
	require.NoError(t, err)
	assert.True(t, s.HasExplicitPasswordFile())
	assert.Equal(t, "/run/secrets/pin", s.PasswordFile())
}

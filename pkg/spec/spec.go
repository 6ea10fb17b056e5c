package spec

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// StoreKind selects where key material lives.
type StoreKind string

const (
	NssStore      StoreKind = "nss"
	FilePairStore StoreKind = "filepair"
)

const (
	DefaultBasedir = "/etc/pki"

	// DefaultFilePairDBName groups markers and staging for file pair requests that do not name a database
	DefaultFilePairDBName = "certreq"

	PasswordFileName = "pwdfile.txt"
	MarkerDirName    = "requested"
	StagingDirName   = "staging"
)

var (
	ErrInvalidSpec          = errors.New("invalid request spec")
	ErrUnsupportedStoreKind = errors.New("unrecognized security library")
)

// ParseStoreKind maps user spellings, including the legacy seclib values, to a StoreKind.
func ParseStoreKind(s string) (StoreKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nss":
		return NssStore, nil
	case "filepair", "file", "openssl", "pem":
		return FilePairStore, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedStoreKind, s)
	}
}

// Params is the raw, user supplied form of a request. It is what flags and manifests decode into.
type Params struct {
	Principal    string `yaml:"principal"`
	Kind         string `yaml:"seclib"`
	DBName       string `yaml:"dbname"`
	Nickname     string `yaml:"nickname"`
	Key          string `yaml:"key"`
	Cert         string `yaml:"cert"`
	Basedir      string `yaml:"basedir"`
	Subject      string `yaml:"subject"`
	Hostname     string `yaml:"hostname"`
	PasswordFile string `yaml:"password_file"`
	PostSave     string `yaml:"post_save"`
	OwnerID      int    `yaml:"owner_id"`
	GroupID      int    `yaml:"group_id"`
}

// CertificateRequestSpec is a validated, immutable request description.
// Construct it with New.
type CertificateRequestSpec struct {
	principal    string
	normalizedID string
	kind         StoreKind
	dbName       string
	nickname     string
	keyPath      string
	certPath     string
	basedir      string
	subject      string
	hostname     string
	passwordFile string
	postSave     string
	ownerID      int
	groupID      int
}

// New validates p and returns the request spec. Every problem found is reported, wrapped in ErrInvalidSpec,
// except an unknown kind which fails fast with ErrUnsupportedStoreKind.
func New(p Params) (CertificateRequestSpec, error) {
	kind, err := ParseStoreKind(p.Kind)
	if err != nil {
		return CertificateRequestSpec{}, err
	}

	s := CertificateRequestSpec{
		principal:    strings.TrimSpace(p.Principal),
		kind:         kind,
		dbName:       strings.TrimSpace(p.DBName),
		nickname:     strings.TrimSpace(p.Nickname),
		keyPath:      strings.TrimSpace(p.Key),
		certPath:     strings.TrimSpace(p.Cert),
		basedir:      strings.TrimSpace(p.Basedir),
		subject:      strings.TrimSpace(p.Subject),
		hostname:     strings.TrimSpace(p.Hostname),
		passwordFile: strings.TrimSpace(p.PasswordFile),
		postSave:     strings.TrimSpace(p.PostSave),
		ownerID:      p.OwnerID,
		groupID:      p.GroupID,
	}
	if s.basedir == "" {
		s.basedir = DefaultBasedir
	}
	if s.kind == FilePairStore && s.dbName == "" {
		s.dbName = DefaultFilePairDBName
	}

	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if s.principal == "" {
		add("principal is required")
	} else if strings.ContainsAny(s.principal, " \t\r\n") {
		add("principal %q must not contain whitespace", s.principal)
	}
	if !filepath.IsAbs(s.basedir) {
		add("basedir %q must be an absolute path", s.basedir)
	}
	if s.ownerID < 0 || s.groupID < 0 {
		add("owner and group ids must not be negative")
	}

	switch s.kind {
	case NssStore:
		if s.dbName == "" {
			add("dbname is required for the nss store")
		}
		if s.nickname == "" {
			add("nickname is required for the nss store")
		}
		if s.keyPath != "" || s.certPath != "" {
			add("key and cert paths are not used by the nss store")
		}
		if s.passwordFile != "" && !filepath.IsAbs(s.passwordFile) {
			add("password file %q must be an absolute path", s.passwordFile)
		}
	case FilePairStore:
		if s.keyPath == "" {
			add("key path is required for the file pair store")
		} else if !filepath.IsAbs(s.keyPath) {
			add("key path %q must be absolute", s.keyPath)
		}
		if s.certPath == "" {
			add("cert path is required for the file pair store")
		} else if !filepath.IsAbs(s.certPath) {
			add("cert path %q must be absolute", s.certPath)
		}
		if s.keyPath != "" && filepath.Clean(s.keyPath) == filepath.Clean(s.certPath) {
			add("key and cert must be different files")
		}
		if s.nickname != "" {
			add("nickname is only used by the nss store")
		}
		if s.passwordFile != "" {
			add("password file is only used by the nss store")
		}
	}

	if s.dbName != "" && (strings.ContainsRune(s.dbName, filepath.Separator) || s.dbName == "." || s.dbName == "..") {
		add("dbname %q must be a single directory name", s.dbName)
	}

	if len(problems) > 0 {
		return CertificateRequestSpec{}, fmt.Errorf("%w: %w", ErrInvalidSpec, errors.Join(problems...))
	}

	s.normalizedID = NormalizePrincipal(s.principal)
	return s, nil
}

// NormalizePrincipal turns a principal into a file name: '/' and NUL become underscores, so
// HTTP/h@REALM maps to HTTP_h@REALM. A leading '.' is replaced as well, which keeps semaphores
// apart from the dot-prefixed lock files and rules out "." and "..".
func NormalizePrincipal(principal string) string {
	b := []byte(principal)
	for i, c := range b {
		if c == '/' || c == 0 {
			b[i] = '_'
		}
	}
	if len(b) > 0 && b[0] == '.' {
		b[0] = '_'
	}
	return string(b)
}

func (s CertificateRequestSpec) Principal() string    { return s.principal }
func (s CertificateRequestSpec) NormalizedID() string { return s.normalizedID }
func (s CertificateRequestSpec) Kind() StoreKind      { return s.kind }
func (s CertificateRequestSpec) DBName() string       { return s.dbName }
func (s CertificateRequestSpec) Nickname() string     { return s.nickname }
func (s CertificateRequestSpec) KeyPath() string      { return s.keyPath }
func (s CertificateRequestSpec) CertPath() string     { return s.certPath }
func (s CertificateRequestSpec) Basedir() string      { return s.basedir }
func (s CertificateRequestSpec) Subject() string      { return s.subject }
func (s CertificateRequestSpec) Hostname() string     { return s.hostname }
func (s CertificateRequestSpec) OwnerID() int         { return s.ownerID }
func (s CertificateRequestSpec) GroupID() int         { return s.groupID }

// IsZero reports whether s was never constructed through New.
func (s CertificateRequestSpec) IsZero() bool { return s.principal == "" }

// DBPath is ${basedir}/${dbname}; the NSS database directory for the nss store.
func (s CertificateRequestSpec) DBPath() string {
	return filepath.Join(s.basedir, s.dbName)
}

// PasswordFile returns the configured NSS password file, or the conventional one inside the database.
func (s CertificateRequestSpec) PasswordFile() string {
	if s.passwordFile != "" {
		return s.passwordFile
	}
	return filepath.Join(s.DBPath(), PasswordFileName)
}

// HasExplicitPasswordFile reports whether the password file was set by the user.
func (s CertificateRequestSpec) HasExplicitPasswordFile() bool {
	return s.passwordFile != ""
}

// MarkerDir holds one semaphore per requested principal.
func (s CertificateRequestSpec) MarkerDir() string {
	return filepath.Join(s.DBPath(), MarkerDirName)
}

// SemaphorePath is the per-principal "already requested" marker.
func (s CertificateRequestSpec) SemaphorePath() string {
	return filepath.Join(s.MarkerDir(), s.normalizedID)
}

// StagingDir is where the daemon writes file pair material before it is materialized.
func (s CertificateRequestSpec) StagingDir() string {
	return filepath.Join(s.DBPath(), StagingDirName, s.normalizedID)
}

// PostSaveCommand is the shell command the daemon runs after saving a certificate, or "".
func (s CertificateRequestSpec) PostSaveCommand() string { return s.postSave }

// WithPostSave returns a copy of s whose post-save command is cmd.
func (s CertificateRequestSpec) WithPostSave(cmd string) CertificateRequestSpec {
	s.postSave = strings.TrimSpace(cmd)
	return s
}

// SubjectDN returns the -N argument, or "" when no override was requested.
func (s CertificateRequestSpec) SubjectDN() string {
	if s.subject == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToUpper(s.subject), "CN=") {
		return s.subject
	}
	return "CN=" + s.subject
}

func (s CertificateRequestSpec) String() string {
	return fmt.Sprintf("%s (%s)", s.principal, s.kind)
}

package version

// Set at build time with
//
//	-ldflags "-X github.com/Layr-Labs/certreq/internal/version.version=v1.2.3 -X github.com/Layr-Labs/certreq/internal/version.commit=abcdef"
var (
	version = "Development"
	commit  = "unknown"
)

func GetVersion() string {
	return version
}

func GetCommit() string {
	return commit
}

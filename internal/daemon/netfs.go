package daemon

// NetFSServer abstracts the network filesystem server that exposes a
// mounted table (NFS by default, SMB behind the smb build tag).
type NetFSServer interface {
	// Serve starts the server on addr (e.g. "127.0.0.1:20490")
	Serve(addr string) error

	// Shutdown stops the server
	Shutdown()
}

// NetFSType returns the network filesystem type this build serves
// ("nfs" or "smb"). netFSTypeName is set by the build-tagged server files.
func NetFSType() string {
	return netFSTypeName
}

var netFSTypeName string

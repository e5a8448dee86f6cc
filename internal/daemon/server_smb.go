//go:build smb

package daemon

import (
	smb2 "github.com/macos-fuse-t/go-smb2/server"
	smbvfs "github.com/macos-fuse-t/go-smb2/vfs"

	flatfs "flatfs/internal/vfs"
)

func init() {
	netFSTypeName = "smb"
}

// SMBServer exports one file table as a single guest-accessible SMB share
type SMBServer struct {
	server *smb2.Server
}

// NewSMBServer builds an SMB server serving fs under shareName. Guest auth
// is the only auth: the server binds loopback for one local user.
func NewSMBServer(fs *flatfs.FlatFS, shareName string) *SMBServer {
	auth := &smb2.NTLMAuthenticator{
		NbDomain:   "WORKGROUP",
		NbName:     "FLATFS",
		DnsName:    "flatfs.local",
		DnsDomain:  ".local",
		AllowGuest: true,
	}

	srv := smb2.NewServer(
		&smb2.ServerConfig{
			AllowGuest:  true,
			MaxIOReads:  4,
			MaxIOWrites: 4,
		},
		auth,
		map[string]smbvfs.VFSFileSystem{shareName: fs},
	)
	return &SMBServer{server: srv}
}

// Serve accepts SMB connections on addr until Shutdown
func (s *SMBServer) Serve(addr string) error {
	return s.server.Serve(addr)
}

// Shutdown stops the SMB server
func (s *SMBServer) Shutdown() {
	s.server.Shutdown()
}

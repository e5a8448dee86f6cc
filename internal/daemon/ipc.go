// Copyright 2024 FlatFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package daemon

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
)

// Request types
const (
	RequestMount     = "mount"
	RequestUnmount   = "unmount"
	RequestStatus    = "status"
	RequestStop      = "stop"
	RequestIsMounted = "is_mounted" // Check if a target path is mounted
	RequestPing      = "ping"       // Liveness check; response carries the daemon pid
)

// Request represents an IPC request
type Request struct {
	Type    string   `json:"type"`
	Target  string   `json:"target,omitempty"`
	Targets []string `json:"targets,omitempty"` // Multiple targets for batch operations (e.g., is_mounted)
	All     bool     `json:"all,omitempty"`

	// Mount fields
	Name        string   `json:"name,omitempty"`         // Share name (default "flatfs")
	Seed        string   `json:"seed,omitempty"`         // Directory to seed the namespace from
	NoGitignore bool     `json:"no_gitignore,omitempty"` // Disable .gitignore filtering during seed
	Includes    []string `json:"includes,omitempty"`     // Seed force-includes
	Excludes    []string `json:"excludes,omitempty"`     // Seed force-excludes
}

// MountOptions carries the optional mount request fields.
type MountOptions struct {
	Name        string   // Share name (default "flatfs")
	Seed        string   // Directory to seed the namespace from (empty = start empty)
	NoGitignore bool     // Disable .gitignore filtering during seed
	Includes    []string // Seed force-includes
	Excludes    []string // Seed force-excludes
}

// MountStatus represents a mount's status
type MountStatus struct {
	ID        string `json:"id"`                   // Mount UUID
	Name      string `json:"name"`                 // Share name
	Target    string `json:"target"`               // Mount path where the user accesses the namespace
	Port      int    `json:"port"`                 // Port the network-FS server listens on
	Files     int    `json:"files"`                // Current number of files in the namespace
	OpenFiles int    `json:"open_files,omitempty"` // Currently held open-file slots
}

// Response represents an IPC response
type Response struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message,omitempty"`
	Error        string          `json:"error,omitempty"`
	PID          int             `json:"pid,omitempty"`
	Mounts       []MountStatus   `json:"mounts,omitempty"`
	MountedPaths map[string]bool `json:"mounted_paths,omitempty"` // For batch is_mounted: path -> mounted status
}

// Server is the IPC server
type Server struct {
	listener net.Listener
	handler  func(*Request) *Response
}

// NewServer creates a new IPC server
func NewServer(handler func(*Request) *Response) *Server {
	return &Server{handler: handler}
}

// Start starts the IPC server
func (s *Server) Start() error {
	// Remove existing socket
	os.Remove(SocketPath())

	// Create listener
	listener, err := net.Listen("unix", SocketPath())
	if err != nil {
		return fmt.Errorf("failed to create socket: %w", err)
	}
	s.listener = listener

	// Make socket accessible
	os.Chmod(SocketPath(), 0600)

	// Start accepting connections
	go s.accept()

	return nil
}

// Stop stops the IPC server
func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
		os.Remove(SocketPath())
	}
}

func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // Server stopped
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	// Read request
	decoder := json.NewDecoder(conn)
	var req Request
	if err := decoder.Decode(&req); err != nil {
		return
	}

	// Handle request
	resp := s.handler(&req)

	// Send response
	encoder := json.NewEncoder(conn)
	encoder.Encode(resp)
}

// Client is the IPC client
type Client struct {
	conn net.Conn
}

// Connect connects to the daemon
func Connect() (*Client, error) {
	conn, err := net.Dial("unix", SocketPath())
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send sends a request and returns the response
func (c *Client) Send(req *Request) (*Response, error) {
	// Send request
	encoder := json.NewEncoder(c.conn)
	if err := encoder.Encode(req); err != nil {
		return nil, err
	}

	// Read response
	decoder := json.NewDecoder(c.conn)
	var resp Response
	if err := decoder.Decode(&resp); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("daemon closed connection")
		}
		return nil, err
	}

	return &resp, nil
}

// Mount asks the daemon to serve a fresh namespace at the target path
func (c *Client) Mount(target string, opts MountOptions) (*Response, error) {
	return c.Send(&Request{
		Type:        RequestMount,
		Target:      target,
		Name:        opts.Name,
		Seed:        opts.Seed,
		NoGitignore: opts.NoGitignore,
		Includes:    opts.Includes,
		Excludes:    opts.Excludes,
	})
}

// Unmount sends an unmount request
func (c *Client) Unmount(target string, all bool) (*Response, error) {
	return c.Send(&Request{
		Type:   RequestUnmount,
		Target: target,
		All:    all,
	})
}

// Status sends a status request
func (c *Client) Status() (*Response, error) {
	return c.Send(&Request{Type: RequestStatus})
}

// Stop sends a stop request
func (c *Client) Stop() (*Response, error) {
	return c.Send(&Request{Type: RequestStop})
}

// Ping checks daemon liveness; the response carries the daemon pid
func (c *Client) Ping() (*Response, error) {
	return c.Send(&Request{Type: RequestPing})
}

// CheckMounts checks if one or more target paths are mounted.
// Returns a map of path -> mounted status, and true if ALL paths are mounted.
// For single path, use CheckMounts([]string{path}) or the convenience IsMounted method.
func (c *Client) CheckMounts(targets []string) (map[string]bool, bool, error) {
	resp, err := c.Send(&Request{
		Type:    RequestIsMounted,
		Targets: targets,
	})
	if err != nil {
		return nil, false, err
	}
	return resp.MountedPaths, resp.Success, nil
}

// IsMounted checks if a single target path is mounted (convenience wrapper).
func (c *Client) IsMounted(target string) (bool, error) {
	_, allMounted, err := c.CheckMounts([]string{target})
	return allMounted, err
}

// IsDaemonRunning checks if the daemon is running
func IsDaemonRunning() bool {
	client, err := Connect()
	if err != nil {
		return false
	}
	client.Close()
	return true
}

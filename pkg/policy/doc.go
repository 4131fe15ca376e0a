// Package policy defines the host facts plugins may consult and a Linux
// implementation backed by uname, os-release, the rpm or dpkg package
// database, SysV rc directories and systemd unit files.
//
// Static provides fixed facts for tests and dry runs.
package policy

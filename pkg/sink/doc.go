// Package sink ships finished archives off the host. The OCI sink pushes the
// archive and its md5 sidecar as layers of an OCI 1.1 artifact.
package sink

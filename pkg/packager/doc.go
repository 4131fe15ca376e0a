// Package packager writes the run reports and turns a staging root into a
// compressed tar archive with an md5 sidecar.
//
// Archives are named report-<who>[-<ticket>]-<YYYYMMDDHHMMSS>-<md5[-4:]>.<ext>
// and are written next to the staging root. xz is preferred; bzip2 is used
// when xz cannot be initialised.
package packager

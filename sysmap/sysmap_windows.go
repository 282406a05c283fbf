//go:build windows

package sysmap

import "github.com/sirupsen/logrus"

// New on windows returns a SysMap that always fails reservation. The
// allocator is designed for the Unix mmap/mprotect contract this package
// describes; a VirtualAlloc-based port is future work, not part of this
// module's scope.
func New(pageBytes int, log *logrus.Entry) SysMap {
	return &unsupportedSysMap{pageBytes: pageBytes}
}

type unsupportedSysMap struct{ pageBytes int }

func (u *unsupportedSysMap) PageBytes() int { return u.pageBytes }

func (u *unsupportedSysMap) Reserve(pages int) (*Region, error) {
	return nil, ErrReserveFailed
}

func (u *unsupportedSysMap) Release(r *Region) error { return nil }

func (u *unsupportedSysMap) Protect(r *Region, offsetPages, pages int, mode Mode) error {
	return ErrReserveFailed
}

func (u *unsupportedSysMap) Bind(r *Region, offsetPages, pages int, node int) error {
	return nil
}

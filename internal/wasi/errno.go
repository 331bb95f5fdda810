package wasi

import "kestrel/internal/defs"

// WASI Preview 1 errno values (spec.md §6: "WASI error numbers are those of
// Preview 1"). Only the subset the shim can actually produce is named.
const (
	ESUCCESS  = 0
	EAGAIN    = 6
	EBADF     = 8
	EBUSY     = 10
	EEXIST    = 20
	EFAULT    = 21
	EINVAL    = 28
	EIO       = 29
	EISDIR    = 31
	ENFILE    = 41
	ENOENT    = 44
	ENOSPC    = 51
	ENOSYS    = 52
	ENOTDIR   = 54
	ENOTSUP   = 58
	EPERM     = 63
	ETIMEDOUT = 73
)

// mapErrno translates a kernel Err_t into its nearest WASI Preview1 errno,
// the boundary every shim call crosses on its way back into guest memory.
func mapErrno(err defs.Err_t) uint32 {
	switch err {
	case defs.ENONE:
		return ESUCCESS
	case defs.ENOFD:
		return EBADF
	case defs.ENOPATH:
		return ENOENT
	case defs.EPERM:
		return EPERM
	case defs.EINVAL:
		return EINVAL
	case defs.EEXIST:
		return EEXIST
	case defs.ENOTDIR:
		return ENOTDIR
	case defs.EISDIR:
		return EISDIR
	case defs.ENOSLOT:
		return ENFILE
	case defs.EWOULDBLOCK:
		return EAGAIN
	case defs.ETIMEOUT:
		return ETIMEDOUT
	case defs.EDEVBUSY:
		return EBUSY
	case defs.EDEVFAIL:
		return EIO
	default:
		return EINVAL
	}
}

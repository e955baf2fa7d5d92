// Package diffengine compares two inventory.Directory snapshots and
// reports what the local side has that the remote side is missing. It is
// intentionally asymmetric: files present only on the remote side are
// never reported, since they may be artifacts of a concurrent writer and
// are not this system's responsibility.
package diffengine

import "github.com/abh/dateferry/inventory"

// Result is the outcome of comparing a local inventory against a remote
// one.
type Result struct {
	InSync        []inventory.File
	MissingRemote []inventory.File
}

type key struct {
	relPath string
	size    uint64
	md5     [16]byte
}

func keyOf(f inventory.File) key {
	return key{relPath: f.RelPath, size: f.Size, md5: f.MD5}
}

// Diff returns the files present in local with a matching (path, size,
// md5) entry in remote (in sync), and the files present in local with no
// such match (missing remotely). Both slices are ordered the same way
// local.Files is ordered (ascending by RelPath).
func Diff(local, remote *inventory.Directory) Result {
	remoteSet := make(map[key]struct{}, len(remote.Files))
	for _, f := range remote.Files {
		remoteSet[keyOf(f)] = struct{}{}
	}

	result := Result{}
	for _, f := range local.Files {
		if _, ok := remoteSet[keyOf(f)]; ok {
			result.InSync = append(result.InSync, f)
		} else {
			result.MissingRemote = append(result.MissingRemote, f)
		}
	}
	return result
}

//go:build !cgo

package phargo

import (
	"errors"
	"hash"
)

// errOpenssl is returned when built without cgo: the openssl-backed
// sha1/sha256/sha512 engines are unavailable, matching the teacher's
// own cgo/no-cgo split.
var errOpenssl = errors.New("phargo: openssl support requires a cgo build")

func opensslSHA512() (hash.Hash, error) { return nil, errOpenssl }
func opensslSHA256() (hash.Hash, error) { return nil, errOpenssl }
func opensslSHA1() (hash.Hash, error)   { return nil, errOpenssl }
